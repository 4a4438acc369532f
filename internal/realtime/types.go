// Package realtime keeps screen views in sync with the backend change feed.
//
// A Registry owns one subscription per (screen, table). The default
// consistency model is a full reload: any change notification on the table,
// whatever row it concerns, re-fetches the whole filtered view and replaces
// it. Screens rely on receiving complete views. IncrementalMerge applies the
// row deltas instead and is opt-in.
package realtime

import (
	"fmt"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/localcache"
)

// Strategy selects how change notifications update a view
type Strategy string

const (
	// FullReload re-fetches the filtered view on every notification.
	FullReload Strategy = "full_reload"
	// IncrementalMerge applies the notification's row to the current view.
	// Notifications without a row payload fall back to a full reload.
	IncrementalMerge Strategy = "incremental_merge"
)

// ParseStrategy parses a strategy name; empty means FullReload.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", FullReload:
		return FullReload, nil
	case IncrementalMerge:
		return IncrementalMerge, nil
	}
	return "", fmt.Errorf("%w: unknown sync strategy %q", domain.ErrValidation, s)
}

// State is the lifecycle state of a subscription
type State int

const (
	Idle State = iota
	Subscribing
	Subscribed
	Reloading
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Reloading:
		return "reloading"
	case Unsubscribed:
		return "unsubscribed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Source tells how a delivered view was produced
type Source string

const (
	SourceInitial Source = "initial"
	SourceReload  Source = "reload"
	SourceMerge   Source = "merge"
)

// View is a complete snapshot of a subscribed table slice
type View struct {
	Table   domain.Table         `json:"table"`
	Rows    []domain.Row         `json:"rows"`
	Source  Source               `json:"source"`
	Version uint64               `json:"version"`
	Changes []domain.ChangeEvent `json:"changes,omitempty"` // notifications folded into this view
}

// Mirror writes every delivered view to the local cache
type Mirror struct {
	Cache  *localcache.Cache
	UserID string
	Kind   localcache.Kind
}

// Options configure a subscription. They are fixed by the first Subscribe
// of a (screen, table); later calls only add references.
type Options struct {
	Filter   domain.Filter
	Kinds    []domain.ChangeKind
	Strategy Strategy
	// KeyColumn identifies rows for IncrementalMerge. Defaults to "id".
	KeyColumn string
	Mirror    *Mirror
	// OnChange receives every view, initial fetch included. Calls are
	// serialised per subscription and must not call back into the Registry.
	OnChange func(View)
	// OnError is told when the change stream ends and the view stops
	// updating.
	OnError func(error)
}

// Handle identifies one subscription
type Handle struct {
	id     uint64
	screen string
	table  domain.Table
}

// Screen returns the screen the handle was issued to
func (h Handle) Screen() string { return h.screen }

// Table returns the subscribed table
func (h Handle) Table() domain.Table { return h.table }

// IsZero reports whether h was never issued by a Registry
func (h Handle) IsZero() bool { return h.id == 0 }

type subKey struct {
	screen string
	table  domain.Table
}

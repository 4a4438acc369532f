package domain

import (
	"fmt"
	"sort"
)

// Filter is a conjunction of column equality predicates
type Filter map[string]any

// OwnedBy is the scope filter restricting a fetch to the current user's rows.
func OwnedBy(userID string) Filter {
	return Filter{"owner_id": userID}
}

// Columns returns the filter columns in a stable order.
func (f Filter) Columns() []string {
	cols := make([]string, 0, len(f))
	for c := range f {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Matches reports whether row satisfies every predicate. Values are compared
// by their textual form so numbers decoded by different codecs still match.
func (f Filter) Matches(row Row) bool {
	for col, want := range f {
		got, ok := row[col]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// ChangeKind is the kind of row-level change carried by the change feed
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// AllChangeKinds subscribes to every change.
var AllChangeKinds = []ChangeKind{ChangeInsert, ChangeUpdate, ChangeDelete}

// ChangeEvent is a row-level notification from the change feed
type ChangeEvent struct {
	Kind       ChangeKind `json:"kind" msgpack:"kind"`
	Table      Table      `json:"table" msgpack:"table"`
	Row        Row        `json:"row,omitempty" msgpack:"row,omitempty"`
	OldRow     Row        `json:"old_row,omitempty" msgpack:"old_row,omitempty"`
	CommitTime int64      `json:"commit_time" msgpack:"commit_time"` // Unix millis
}

// WantsKind reports whether kinds includes k. An empty set means all kinds.
func WantsKind(kinds []ChangeKind, k ChangeKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

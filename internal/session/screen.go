package session

import (
	"context"
	"sync"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/realtime"
	"github.com/rs/zerolog"
)

// SourceCache marks rows hydrated from the local cache
const SourceCache realtime.Source = "cache"

// Screen is a mounted view. The server snapshot is replaced wholesale by
// every delivered view; drafts are local edits kept by row key and survive
// reloads.
type Screen struct {
	session *Session
	spec    ScreenSpec
	log     zerolog.Logger

	mu       sync.RWMutex
	handle   realtime.Handle
	rows     []domain.Row
	source   realtime.Source
	version  uint64
	drafts   map[string]domain.Row
	degraded bool
	mounted  bool
	changed  chan struct{}
}

// Name returns the screen name
func (s *Screen) Name() string { return s.spec.Name }

// Table returns the screen's table
func (s *Screen) Table() domain.Table { return s.spec.Table }

func (s *Screen) hydrate(rows []domain.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.source = SourceCache
	s.notify()
}

func (s *Screen) subscribe(ctx context.Context) {
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()

	sess := s.session
	h, err := sess.Registry.Subscribe(ctx, s.spec.Name, s.spec.Table, realtime.Options{
		Filter:    s.spec.Filter,
		Kinds:     s.spec.Kinds,
		Strategy:  s.spec.Strategy,
		KeyColumn: s.spec.KeyColumn,
		Mirror:    &realtime.Mirror{Cache: sess.Cache, UserID: sess.UserID, Kind: s.spec.CacheKind},
		OnChange:  s.apply,
		OnError:   func(error) { s.setDegraded(true) },
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("Screen running in cache-only mode")
		s.degraded = true
		return
	}
	s.handle = h
	s.degraded = false
}

func (s *Screen) apply(v realtime.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = v.Rows
	s.source = v.Source
	s.version = v.Version
	s.notify()
}

// notify wakes Changed waiters. Caller holds s.mu.
func (s *Screen) notify() {
	if s.changed != nil {
		close(s.changed)
		s.changed = nil
	}
}

func (s *Screen) setDegraded(d bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = d
}

// Changed returns a channel closed on the next update of the rows
func (s *Screen) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed == nil {
		s.changed = make(chan struct{})
	}
	return s.changed
}

// Rows returns a copy of the server snapshot
func (s *Screen) Rows() []domain.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Clone()
	}
	return out
}

// Source tells where the current rows came from
func (s *Screen) Source() realtime.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Version is the registry version of the last delivered view, zero while
// the screen only shows cached rows.
func (s *Screen) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Degraded reports whether the screen lost its subscription and serves the
// last snapshot only.
func (s *Screen) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Mounted reports whether the screen is between Mount and Unmount
func (s *Screen) Mounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mounted
}

// Handle returns the screen's subscription handle
func (s *Screen) Handle() realtime.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *Screen) keyColumn() string {
	if s.spec.KeyColumn != "" {
		return s.spec.KeyColumn
	}
	return "id"
}

// SetDraft records unsaved edits to the row with the given key
func (s *Screen) SetDraft(key string, fields domain.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.drafts[key]
	if draft == nil {
		draft = make(domain.Row, len(fields))
	}
	for k, v := range fields {
		draft[k] = v
	}
	s.drafts[key] = draft
}

// Draft returns the unsaved edits of a row
func (s *Screen) Draft(key string) (domain.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[key]
	return d.Clone(), ok
}

// ClearDraft drops the edits of a row, typically after saving them
func (s *Screen) ClearDraft(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key)
}

// Edited returns the server row with its draft applied on top
func (s *Screen) Edited(key string) (domain.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.keyColumn()
	for _, r := range s.rows {
		if r.String(col) != key {
			continue
		}
		out := r.Clone()
		for k, v := range s.drafts[key] {
			out[k] = v
		}
		return out, true
	}
	return nil, false
}

// Refresh re-subscribes the screen, fetching a fresh view. It is the manual
// recovery path for a degraded screen.
func (s *Screen) Refresh(ctx context.Context) bool {
	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()

	_ = s.session.Registry.Unsubscribe(h)
	s.subscribe(ctx)
	return !s.Degraded()
}

// Unmount releases the screen's subscription. Drafts and rows stay readable.
func (s *Screen) Unmount() {
	s.mu.Lock()
	h := s.handle
	s.handle = realtime.Handle{}
	s.mounted = false
	s.mu.Unlock()

	_ = s.session.Registry.Unsubscribe(h)
}

// Decode converts the screen's rows with fn
func Decode[T any](s *Screen, fn func(domain.Row) (T, error)) ([]T, error) {
	return domain.DecodeRows(s.Rows(), fn)
}

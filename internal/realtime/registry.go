package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/rs/zerolog"
)

const moduleName = "realtime"

// maxFailed bounds how many failed handles keep reporting Idle
const maxFailed = 256

// Registry holds the change subscriptions of one session. There is at most
// one active subscription per (screen, table); subscribing again returns the
// same handle and adds a reference.
type Registry struct {
	remote domain.RemoteStore
	events *events.Manager
	log    zerolog.Logger

	mu   sync.Mutex
	subs map[subKey]*subscription
	// failed holds handles whose start failed, oldest first in failedOrder.
	// Every other handle that is no longer active is Unsubscribed.
	failed      map[uint64]struct{}
	failedOrder []uint64
	nextID      uint64
	closed      bool
}

// NewRegistry creates an empty registry
func NewRegistry(remote domain.RemoteStore, em *events.Manager, log zerolog.Logger) *Registry {
	return &Registry{
		remote: remote,
		events: em,
		log:    log.With().Str("component", "realtime").Logger(),
		subs:   make(map[subKey]*subscription),
		failed: make(map[uint64]struct{}),
	}
}

// Subscribe registers screen's interest in table. The first call opens the
// change stream, fetches the filtered view and delivers it to opts.OnChange
// before returning. Later calls for the same (screen, table) return the
// existing handle without registering another listener.
//
// On failure the subscription returns to Idle, the error is logged and
// returned wrapped in ErrSubscription together with the failed handle.
// There is no retry. A subscription stopped by Unsubscribe or Close before
// it finished starting is not a failure.
func (r *Registry) Subscribe(ctx context.Context, screen string, table domain.Table, opts Options) (Handle, error) {
	if opts.Strategy == "" {
		opts.Strategy = FullReload
	}
	if opts.KeyColumn == "" {
		opts.KeyColumn = "id"
	}
	key := subKey{screen: screen, table: table}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Handle{}, fmt.Errorf("%w: registry closed", domain.ErrSubscription)
	}
	if s, ok := r.subs[key]; ok {
		s.refs++
		r.mu.Unlock()
		r.log.Debug().
			Str("screen", screen).
			Str("table", string(table)).
			Int("refs", s.refs).
			Msg("Reusing subscription")
		return s.handle, nil
	}
	r.nextID++
	s := newSubscription(Handle{id: r.nextID, screen: screen, table: table}, opts, r.remote, r.log)
	r.subs[key] = s
	r.mu.Unlock()

	err := s.start(ctx)
	if s.State() == Unsubscribed {
		// Unsubscribe or Close ran while starting
		r.log.Debug().Str("screen", screen).Str("table", string(table)).Msg("Subscription stopped while starting")
		return s.handle, nil
	}
	if err != nil {
		r.mu.Lock()
		if r.subs[key] == s {
			delete(r.subs, key)
		}
		r.markFailed(s.handle.id)
		r.mu.Unlock()

		r.log.Warn().
			Err(err).
			Str("screen", screen).
			Str("table", string(table)).
			Msg("Subscription failed, serving cached data")
		r.events.Emit(moduleName, &events.SubscriptionDegradedData{
			Screen: screen,
			Table:  string(table),
			Error:  err.Error(),
		})
		return s.handle, fmt.Errorf("%w: %s/%s: %w", domain.ErrSubscription, screen, table, err)
	}

	go s.listen(func(err error) {
		r.log.Warn().Err(err).Str("screen", screen).Str("table", string(table)).Msg("Change stream ended")
		r.events.Emit(moduleName, &events.SubscriptionDegradedData{
			Screen: screen,
			Table:  string(table),
			Error:  err.Error(),
		})
	})

	r.log.Debug().Str("screen", screen).Str("table", string(table)).Msg("Subscribed")
	return s.handle, nil
}

// Unsubscribe releases one reference to h. The last release stops the
// listener; fetches still in flight are discarded. Unsubscribing a handle
// that is no longer active is a no-op.
func (r *Registry) Unsubscribe(h Handle) error {
	if h.IsZero() {
		return nil
	}
	key := subKey{screen: h.screen, table: h.table}

	r.mu.Lock()
	s, ok := r.subs[key]
	if !ok || s.handle.id != h.id {
		r.mu.Unlock()
		return nil
	}
	s.refs--
	if s.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.subs, key)
	r.mu.Unlock()

	s.stop()
	r.log.Debug().Str("screen", h.screen).Str("table", string(h.table)).Msg("Unsubscribed")
	return nil
}

// State returns the lifecycle state of h
func (r *Registry) State(h Handle) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.subs[subKey{screen: h.screen, table: h.table}]; ok && s.handle.id == h.id {
		return s.State()
	}
	if _, ok := r.failed[h.id]; ok {
		return Idle
	}
	if !h.IsZero() && h.id <= r.nextID {
		return Unsubscribed
	}
	return Idle
}

// markFailed records a failed handle, forgetting the oldest beyond
// maxFailed. Caller holds r.mu.
func (r *Registry) markFailed(id uint64) {
	r.failed[id] = struct{}{}
	r.failedOrder = append(r.failedOrder, id)
	if len(r.failedOrder) > maxFailed {
		delete(r.failed, r.failedOrder[0])
		r.failedOrder = r.failedOrder[1:]
	}
}

// View returns the last view delivered for h
func (r *Registry) View(h Handle) (View, bool) {
	r.mu.Lock()
	s, ok := r.subs[subKey{screen: h.screen, table: h.table}]
	r.mu.Unlock()
	if !ok || s.handle.id != h.id {
		return View{}, false
	}
	return s.View()
}

// Refs returns the number of references held on h
func (r *Registry) Refs(h Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[subKey{screen: h.screen, table: h.table}]; ok && s.handle.id == h.id {
		return s.refs
	}
	return 0
}

// Active returns the number of active subscriptions
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Close stops every subscription regardless of references. Subscribe fails
// afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	subs := make([]*subscription, 0, len(r.subs))
	for key, s := range r.subs {
		subs = append(subs, s)
		delete(r.subs, key)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

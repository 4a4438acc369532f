package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/utils"
	"github.com/rs/zerolog"
)

type subscription struct {
	handle Handle
	opts   Options
	remote domain.RemoteStore
	log    zerolog.Logger
	refs   int // guarded by Registry.mu

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	view    View
	hasView bool
	stream  domain.ChangeStream

	// deliverMu serialises deliveries with stop. gen changes only on stop,
	// so a fetch that captured an older gen is discarded.
	deliverMu sync.Mutex
	gen       uint64
	version   uint64
}

func newSubscription(h Handle, opts Options, remote domain.RemoteStore, log zerolog.Logger) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		handle: h,
		opts:   opts,
		remote: remote,
		log: log.With().
			Str("screen", h.screen).
			Str("table", string(h.table)).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
		state:  Subscribing,
	}
}

// State returns the current lifecycle state
func (s *subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *subscription) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Unsubscribed {
		return
	}
	s.state = st
}

// View returns a copy of the last delivered view
func (s *subscription) View() (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneView(s.view), s.hasView
}

func (s *subscription) generation() uint64 {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	return s.gen
}

// start opens the change stream and then performs the initial fetch, so no
// change committed after the fetch can be missed.
func (s *subscription) start(ctx context.Context) error {
	gen := s.generation()

	stream, err := s.remote.SubscribeChanges(s.ctx, s.handle.table, s.opts.Kinds)
	if err != nil {
		s.setState(Idle)
		s.cancel()
		return fmt.Errorf("open change stream: %w", err)
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		// Stopped while opening
		_ = stream.Close()
		return nil
	}

	rows, err := s.remote.Query(ctx, s.handle.table, s.opts.Filter)
	if err != nil {
		_ = stream.Close()
		s.setState(Idle)
		s.cancel()
		return fmt.Errorf("initial fetch: %w", err)
	}

	s.deliver(View{Rows: rows, Source: SourceInitial}, gen)
	s.setState(Subscribed)
	return nil
}

// listen consumes the change stream until the subscription stops.
// Notifications queued while a reload runs are folded into one reload.
func (s *subscription) listen(onEnd func(error)) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return
	}
	changes := stream.Events()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				s.ended(onEnd)
				return
			}
			batch, closed := drain(ev, changes)
			s.apply(batch)
			if closed {
				s.ended(onEnd)
				return
			}
		}
	}
}

func (s *subscription) ended(onEnd func(error)) {
	if s.ctx.Err() != nil {
		return
	}
	err := fmt.Errorf("%w: change stream closed", domain.ErrSubscription)
	onEnd(err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func drain(first domain.ChangeEvent, changes <-chan domain.ChangeEvent) ([]domain.ChangeEvent, bool) {
	batch := []domain.ChangeEvent{first}
	for {
		select {
		case ev, ok := <-changes:
			if !ok {
				return batch, true
			}
			batch = append(batch, ev)
		default:
			return batch, false
		}
	}
}

func (s *subscription) apply(batch []domain.ChangeEvent) {
	gen := s.generation()

	if s.opts.Strategy == IncrementalMerge {
		current, _ := s.View()
		if rows, ok := merge(current.Rows, batch, s.opts.Filter, s.opts.KeyColumn); ok {
			s.deliver(View{Rows: rows, Source: SourceMerge, Changes: batch}, gen)
			return
		}
	}
	s.reload(batch, gen)
}

// reload re-fetches the whole filtered view. A failed reload keeps the last
// view and the subscription stays alive.
func (s *subscription) reload(batch []domain.ChangeEvent, gen uint64) {
	s.setState(Reloading)
	defer s.setState(Subscribed)

	timer := utils.NewTimer("reload "+string(s.handle.table), 5*time.Second, s.log)
	rows, err := s.remote.Query(s.ctx, s.handle.table, s.opts.Filter)
	timer.Stop()
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.log.Warn().
			Err(fmt.Errorf("%w: %w", domain.ErrNetwork, err)).
			Int("changes", len(batch)).
			Msg("Reload failed, keeping last view")
		return
	}

	s.deliver(View{Rows: rows, Source: SourceReload, Changes: batch}, gen)
}

// deliver publishes v unless the subscription stopped since gen was taken
func (s *subscription) deliver(v View, gen uint64) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.gen != gen {
		s.log.Debug().Str("source", string(v.Source)).Msg("Discarding fetch from stopped subscription")
		return false
	}

	if v.Rows == nil {
		v.Rows = []domain.Row{}
	}
	s.version++
	v.Version = s.version
	v.Table = s.handle.table

	s.mu.Lock()
	s.view = v
	s.hasView = true
	s.mu.Unlock()

	if s.opts.OnChange != nil {
		s.opts.OnChange(cloneView(v))
	}
	if m := s.opts.Mirror; m != nil && m.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Cache.Save(ctx, m.UserID, m.Kind, v.Rows); err != nil {
			s.log.Warn().Err(err).Msg("Failed to mirror view to local cache")
		}
		cancel()
	}
	return true
}

func (s *subscription) stop() {
	s.deliverMu.Lock()
	s.gen++
	s.deliverMu.Unlock()

	s.mu.Lock()
	s.state = Unsubscribed
	stream := s.stream
	s.mu.Unlock()

	s.cancel()
	if stream != nil {
		_ = stream.Close()
	}
}

func cloneView(v View) View {
	if v.Rows != nil {
		rows := make([]domain.Row, len(v.Rows))
		for i, r := range v.Rows {
			rows[i] = r.Clone()
		}
		v.Rows = rows
	}
	if v.Changes != nil {
		v.Changes = append([]domain.ChangeEvent(nil), v.Changes...)
	}
	return v
}

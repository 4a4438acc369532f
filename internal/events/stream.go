package events

import (
	"sync"

	"github.com/aristath/agrimarket/internal/domain"
)

// QueueStream is an unbounded domain.ChangeStream. Producers Push without
// blocking; a pump goroutine hands events to the consumer in order. Events()
// is closed after Close.
type QueueStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []domain.ChangeEvent
	closed  bool
	ch      chan domain.ChangeEvent
	done    chan struct{}
	onClose func()
	once    sync.Once
}

// NewQueueStream starts a stream. onClose, if set, runs once on Close.
func NewQueueStream(onClose func()) *QueueStream {
	s := &QueueStream{
		ch:      make(chan domain.ChangeEvent),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Push enqueues an event. Pushing to a closed stream is a no-op.
func (s *QueueStream) Push(ev domain.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, ev)
	s.cond.Signal()
}

// Events returns the delivery channel
func (s *QueueStream) Events() <-chan domain.ChangeEvent {
	return s.ch
}

// Done is closed once the stream is closed
func (s *QueueStream) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery. Queued events not yet delivered are dropped.
func (s *QueueStream) Close() error {
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.cond.Broadcast()
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *QueueStream) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}

package changefeed

import (
	"sync"

	"github.com/dshills/lorekeeper/pkg/types"
)

// DefaultBuffer is the per-subscription event buffer size
const DefaultBuffer = 256

// Stream is the Subscription implementation shared by all transports.
// Transports push with Offer and report failures with Fail.
type Stream struct {
	Entity types.EntityType
	Filter Filter

	events  chan types.ChangeEvent
	errs    chan error
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	onClose func()
}

// NewStream creates a stream; onClose runs once when the stream ends
func NewStream(entity types.EntityType, filter Filter, buffer int, onClose func()) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		Entity:  entity,
		Filter:  filter,
		events:  make(chan types.ChangeEvent, buffer),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Events implements Subscription
func (s *Stream) Events() <-chan types.ChangeEvent { return s.events }

// Errors implements Subscription
func (s *Stream) Errors() <-chan error { return s.errs }

// Done is closed when the stream ends
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wants reports whether evt belongs on this stream
func (s *Stream) Wants(evt types.ChangeEvent) bool {
	return evt.EntityType == s.Entity && s.Filter.Matches(evt)
}

// Offer enqueues evt without blocking. A full buffer fails the stream with
// ErrOverflow so the consumer resubscribes and resyncs.
func (s *Stream) Offer(evt types.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- evt:
		return true
	default:
		s.failLocked(ErrOverflow)
		return false
	}
}

// Fail ends the stream and reports err to the consumer
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(err)
}

func (s *Stream) failLocked(err error) {
	s.once.Do(func() {
		s.errs <- err
		close(s.done)
		if s.onClose != nil {
			go s.onClose()
		}
	})
}

// Close implements Subscription
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			go s.onClose()
		}
	})
	return nil
}

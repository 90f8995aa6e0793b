package changefeed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/pkg/types"
)

// Bus is an in-process Feed. Publish never blocks; a subscriber whose buffer
// is full is failed with ErrOverflow.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Stream]struct{}
	buffer int
	closed bool
	log    zerolog.Logger
}

// NewBus creates a bus with the given per-subscription buffer size
func NewBus(buffer int, log zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[*Stream]struct{}),
		buffer: buffer,
		log:    log.With().Str("component", "changefeed.bus").Logger(),
	}
}

// Publish delivers evt to every matching subscriber
func (b *Bus) Publish(ctx context.Context, evt types.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs {
		if !sub.Wants(evt) {
			continue
		}
		if !sub.Offer(evt) {
			droppedTotal.WithLabelValues("bus").Inc()
			b.log.Warn().
				Str("entity", string(evt.EntityType)).
				Str("id", evt.EntityID).
				Msg("subscriber dropped event")
		}
	}
	return nil
}

// Subscribe registers a new subscription
func (b *Bus) Subscribe(ctx context.Context, entity types.EntityType, filter Filter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	var sub *Stream
	sub = NewStream(entity, filter, b.buffer, func() { b.remove(sub) })
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of live subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(sub *Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Close fails every subscription with ErrClosed
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Stream, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Stream]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Fail(ErrClosed)
	}
	return nil
}

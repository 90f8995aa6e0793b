package changefeed

import (
	"context"
	"errors"

	"github.com/dshills/lorekeeper/pkg/types"
)

var (
	// ErrClosed is returned by a feed or subscription after Close
	ErrClosed = errors.New("change feed closed")
	// ErrOverflow is reported when a subscriber falls too far behind
	ErrOverflow = errors.New("change feed subscriber overflow")
	// ErrDisconnected is reported when the transport drops the subscription
	ErrDisconnected = errors.New("change feed disconnected")
)

// Feed publishes and subscribes to change events
type Feed interface {
	Publish(ctx context.Context, evt types.ChangeEvent) error
	Subscribe(ctx context.Context, entity types.EntityType, filter Filter) (Subscription, error)
	Close() error
}

// Subscription is a live stream of change events for one collection
type Subscription interface {
	// Events delivers matching events in transport order
	Events() <-chan types.ChangeEvent
	// Errors receives at most one error, after which the subscription is dead
	Errors() <-chan error
	Close() error
}

// fieldValuer is implemented by every change event payload type
type fieldValuer interface {
	FieldValue(field string) (string, bool)
}

// Filter narrows a subscription to events whose payload field equals Value.
// The zero Filter matches every event.
type Filter struct {
	Field string
	Value string
}

// Eq builds a single-field equality filter
func Eq(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

// IsZero reports whether f matches everything
func (f Filter) IsZero() bool {
	return f.Field == ""
}

// Matches reports whether evt passes the filter. Events without a payload
// only match on the id field.
func (f Filter) Matches(evt types.ChangeEvent) bool {
	if f.IsZero() {
		return true
	}
	if f.Field == "id" {
		return evt.EntityID == f.Value
	}
	fv, ok := evt.Payload.(fieldValuer)
	if !ok {
		return false
	}
	v, ok := fv.FieldValue(f.Field)
	return ok && v == f.Value
}

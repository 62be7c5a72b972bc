// Package event implements in-process domain events: immutable event values,
// a registry that maps event kinds to handlers, and a synchronous bus that
// dispatches published events to those handlers.
package event

import (
	"context"
	"time"
)

// Kind is the discriminator of a concrete event type, e.g. "order.confirmed".
type Kind string

// Event is an immutable fact raised by an aggregate.
//
// Kind must be implemented on a value receiver: the registry asks the zero
// value of a handler's event type for its kind.
type Event interface {
	Kind() Kind
	EventID() string
	AggregateID() string
	OccurredAt() time.Time
}

// Handler processes events of exactly one concrete type.
type Handler[E Event] interface {
	Handle(ctx context.Context, e E) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[E Event] func(ctx context.Context, e E) error

// Handle calls f(ctx, e).
func (f HandlerFunc[E]) Handle(ctx context.Context, e E) error {
	return f(ctx, e)
}

// Publisher publishes an ordered batch of events.
type Publisher interface {
	PublishRange(ctx context.Context, events []Event) error
}

package event

import (
	"context"

	"github.com/go-faster/errors"
)

// route is a registered handler with its event type erased.
type route struct {
	name   string
	handle func(ctx context.Context, e Event) error
}

// Registry collects handler registrations during process startup. It is not
// safe for concurrent use; build it once, then hand it to NewBus.
type Registry struct {
	routes map[Kind][]route
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[Kind][]route)}
}

// Register adds h as a handler for the kind of E. Handlers of the same kind
// are invoked in registration order.
func Register[E Event](r *Registry, name string, h Handler[E]) {
	var zero E
	kind := zero.Kind()
	r.routes[kind] = append(r.routes[kind], route{
		name: name,
		handle: func(ctx context.Context, e Event) error {
			typed, ok := e.(E)
			if !ok {
				return errors.Errorf("handler %q: event %s has type %T", name, kind, e)
			}
			return h.Handle(ctx, typed)
		},
	})
}

// Kinds returns the number of handlers registered per kind.
func (r *Registry) Kinds() map[Kind]int {
	out := make(map[Kind]int, len(r.routes))
	for k, rs := range r.routes {
		out[k] = len(rs)
	}
	return out
}

// snapshot returns a deep copy of the routing table.
func (r *Registry) snapshot() map[Kind][]route {
	out := make(map[Kind][]route, len(r.routes))
	for k, rs := range r.routes {
		out[k] = append([]route(nil), rs...)
	}
	return out
}

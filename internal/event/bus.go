package event

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrDispatch matches every *DispatchError.
var ErrDispatch = errors.New("event dispatch failed")

// DispatchError reports a handler failure during PublishRange. Dispatch stops
// at the failing handler: the remaining handlers of Event and all events after
// it were not invoked. Pass the error to Bus.Resume to deliver exactly that
// unprocessed remainder.
type DispatchError struct {
	Event   Event
	Handler string
	Err     error

	next int
	rest []Event
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s %s to %q: %v", e.Event.Kind(), e.Event.EventID(), e.Handler, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDispatch.
func (e *DispatchError) Is(target error) bool { return target == ErrDispatch }

// Unprocessed returns the failed event followed by every event that was not
// dispatched because of the failure.
func (e *DispatchError) Unprocessed() []Event {
	out := make([]Event, 0, len(e.rest)+1)
	out = append(out, e.Event)
	return append(out, e.rest...)
}

// Option configures a Bus.
type Option func(*Bus)

// WithTracerProvider sets the tracer provider used for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bus) { b.tracer = tp.Tracer("delivery-admin/event") }
}

// WithMeterProvider sets the meter provider used for dispatch counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(b *Bus) { b.meter = mp.Meter("delivery-admin/event") }
}

// Bus dispatches events synchronously to the handlers registered for their
// kind. The routing table is fixed at construction, so a Bus is safe for
// concurrent use.
type Bus struct {
	routes map[Kind][]route

	tracer     trace.Tracer
	meter      metric.Meter
	dispatched metric.Int64Counter
	failed     metric.Int64Counter
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a Bus from a snapshot of reg. Later registrations on reg do
// not affect the returned Bus.
func NewBus(reg *Registry, opts ...Option) (*Bus, error) {
	b := &Bus{
		routes: reg.snapshot(),
		tracer: otel.GetTracerProvider().Tracer("delivery-admin/event"),
		meter:  otel.GetMeterProvider().Meter("delivery-admin/event"),
	}
	for _, o := range opts {
		o(b)
	}

	var err error
	if b.dispatched, err = b.meter.Int64Counter("delivery.events.dispatched",
		metric.WithDescription("Handler invocations that completed without error"),
	); err != nil {
		return nil, errors.Wrap(err, "dispatched counter")
	}
	if b.failed, err = b.meter.Int64Counter("delivery.events.failed",
		metric.WithDescription("Handler invocations that returned an error"),
	); err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}
	return b, nil
}

// PublishRange dispatches events in order. For each event every handler
// registered for its kind runs in registration order on the calling
// goroutine. Events without handlers are dropped.
//
// The first handler error stops dispatch and is returned as *DispatchError.
func (b *Bus) PublishRange(ctx context.Context, events []Event) error {
	return b.dispatch(ctx, events, 0)
}

// Resume continues a dispatch that failed with derr: the failed handler and
// the handlers after it receive derr.Event, then the remaining events are
// dispatched normally. Handlers that already succeeded are not invoked again.
func (b *Bus) Resume(ctx context.Context, derr *DispatchError) error {
	if derr == nil {
		return nil
	}
	return b.dispatch(ctx, derr.Unprocessed(), derr.next)
}

func (b *Bus) dispatch(ctx context.Context, events []Event, from int) error {
	for i, e := range events {
		start := 0
		if i == 0 {
			start = from
		}
		if err := b.publish(ctx, e, start); err != nil {
			var derr *DispatchError
			if errors.As(err, &derr) {
				derr.rest = append([]Event(nil), events[i+1:]...)
			}
			return err
		}
	}
	return nil
}

func (b *Bus) publish(ctx context.Context, e Event, start int) error {
	routes := b.routes[e.Kind()]
	lg := zctx.From(ctx).With(
		zap.String("event_kind", string(e.Kind())),
		zap.String("event_id", e.EventID()),
		zap.String("aggregate_id", e.AggregateID()),
	)
	if len(routes) == 0 {
		lg.Debug("No handlers for event")
		return nil
	}

	kindAttr := attribute.String("event.kind", string(e.Kind()))
	ctx, span := b.tracer.Start(ctx, "event.Dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(kindAttr, attribute.String("event.id", e.EventID())),
	)
	defer span.End()

	for i := start; i < len(routes); i++ {
		r := routes[i]
		if err := r.handle(ctx, e); err != nil {
			b.failed.Add(ctx, 1, metric.WithAttributes(kindAttr, attribute.String("handler", r.name)))
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
			lg.Warn("Event handler failed", zap.String("handler", r.name), zap.Error(err))
			return &DispatchError{Event: e, Handler: r.name, Err: err, next: i}
		}
		b.dispatched.Add(ctx, 1, metric.WithAttributes(kindAttr, attribute.String("handler", r.name)))
		lg.Debug("Event handled", zap.String("handler", r.name))
	}
	return nil
}

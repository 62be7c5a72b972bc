package order

import (
	"context"
	"time"

	"github.com/xenking/delivery-admin/internal/event"
)

// Event kinds raised by the order aggregate.
const (
	KindConfirmed      event.Kind = "order.confirmed"
	KindReadyForPickup event.Kind = "order.ready_for_pickup"
	KindOutForDelivery event.Kind = "order.out_for_delivery"
	KindDelivered      event.Kind = "order.delivered"
	KindCanceled       event.Kind = "order.canceled"
	KindFailed         event.Kind = "order.failed"
)

// Meta is shared by all order events.
type Meta struct {
	ID       string
	OrderID  string
	TenantID string
	At       time.Time
}

func (m Meta) EventID() string       { return m.ID }
func (m Meta) AggregateID() string   { return m.OrderID }
func (m Meta) OccurredAt() time.Time { return m.At }

// Confirmed is raised when the restaurant accepts the order.
type Confirmed struct{ Meta }

func (Confirmed) Kind() event.Kind { return KindConfirmed }

// ReadyForPickup is raised when the food is ready for a courier.
type ReadyForPickup struct{ Meta }

func (ReadyForPickup) Kind() event.Kind { return KindReadyForPickup }

// OutForDelivery is raised when a courier leaves with the order.
type OutForDelivery struct {
	Meta
	DeliveryPersonID string
	ETAMinutes       *int
}

func (OutForDelivery) Kind() event.Kind { return KindOutForDelivery }

// Delivered is raised when the customer receives the order.
type Delivered struct{ Meta }

func (Delivered) Kind() event.Kind { return KindDelivered }

// Canceled is raised when the order is canceled before pickup.
type Canceled struct {
	Meta
	Reason string
}

func (Canceled) Kind() event.Kind { return KindCanceled }

// Failed is raised when the order cannot be fulfilled.
type Failed struct {
	Meta
	Reason string
}

func (Failed) Kind() event.Kind { return KindFailed }

// StatusChange is a flat projection of any order event, convenient for
// consumers that treat every kind alike.
type StatusChange struct {
	EventID          string
	Kind             event.Kind
	OrderID          string
	TenantID         string
	Status           Status
	At               time.Time
	Reason           string
	DeliveryPersonID string
	ETAMinutes       *int
}

func (m Meta) change(kind event.Kind, s Status) StatusChange {
	return StatusChange{
		EventID:  m.ID,
		Kind:     kind,
		OrderID:  m.OrderID,
		TenantID: m.TenantID,
		Status:   s,
		At:       m.At,
	}
}

func (e Confirmed) Change() StatusChange      { return e.change(KindConfirmed, StatusConfirmed) }
func (e ReadyForPickup) Change() StatusChange { return e.change(KindReadyForPickup, StatusReadyForPickup) }
func (e Delivered) Change() StatusChange      { return e.change(KindDelivered, StatusDelivered) }

func (e OutForDelivery) Change() StatusChange {
	c := e.change(KindOutForDelivery, StatusOutForDelivery)
	c.DeliveryPersonID = e.DeliveryPersonID
	c.ETAMinutes = e.ETAMinutes
	return c
}

func (e Canceled) Change() StatusChange {
	c := e.change(KindCanceled, StatusCanceled)
	c.Reason = e.Reason
	return c
}

func (e Failed) Change() StatusChange {
	c := e.change(KindFailed, StatusFailed)
	c.Reason = e.Reason
	return c
}

// ChangeOf projects an order event to a StatusChange. It reports false for
// events not raised by the order aggregate.
func ChangeOf(e event.Event) (StatusChange, bool) {
	c, ok := e.(interface{ Change() StatusChange })
	if !ok {
		return StatusChange{}, false
	}
	return c.Change(), true
}

// RegisterChangeHandler registers fn for every order event kind under name.
func RegisterChangeHandler(r *event.Registry, name string, fn func(ctx context.Context, c StatusChange) error) {
	event.Register(r, name, event.HandlerFunc[Confirmed](func(ctx context.Context, e Confirmed) error {
		return fn(ctx, e.Change())
	}))
	event.Register(r, name, event.HandlerFunc[ReadyForPickup](func(ctx context.Context, e ReadyForPickup) error {
		return fn(ctx, e.Change())
	}))
	event.Register(r, name, event.HandlerFunc[OutForDelivery](func(ctx context.Context, e OutForDelivery) error {
		return fn(ctx, e.Change())
	}))
	event.Register(r, name, event.HandlerFunc[Delivered](func(ctx context.Context, e Delivered) error {
		return fn(ctx, e.Change())
	}))
	event.Register(r, name, event.HandlerFunc[Canceled](func(ctx context.Context, e Canceled) error {
		return fn(ctx, e.Change())
	}))
	event.Register(r, name, event.HandlerFunc[Failed](func(ctx context.Context, e Failed) error {
		return fn(ctx, e.Change())
	}))
}

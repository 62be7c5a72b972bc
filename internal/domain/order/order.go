package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-admin/internal/event"
)

// LineItem is a priced entry of an order.
type LineItem struct {
	MenuItemID string             `json:"menu_item_id"`
	Name       string             `json:"name"`
	Quantity   int                `json:"quantity"`
	UnitPrice  decimal.Decimal    `json:"unit_price"`
	Total      decimal.Decimal    `json:"total"`
	Variants   []VariantSelection `json:"variants,omitempty"`
}

// VariantSelection is an option the customer picked for a line item,
// e.g. group "Size", name "Large".
type VariantSelection struct {
	Group string `json:"group"`
	Name  string `json:"name"`
}

// Snapshot is the complete state of an order. It is what storage reads and
// writes; mutation goes through Order methods only.
type Snapshot struct {
	InternalID       int64
	ID               string
	TenantID         string
	CustomerID       string
	RestaurantID     string
	DeliveryAddress  string
	Items            []LineItem
	DeliveryFee      decimal.Decimal
	Subtotal         decimal.Decimal
	Total            decimal.Decimal
	Status           Status
	ETAMinutes       *int
	DeliveryPersonID string
	CreatedAt        time.Time
	ConfirmedAt      *time.Time
	ReadyAt          *time.Time
	PickedUpAt       *time.Time
	CompletedAt      *time.Time
	CanceledAt       *time.Time
	FailedAt         *time.Time
	CancelReason     string
	FailureReason    string
	Version          int
}

// Order is the order aggregate root. It enforces the lifecycle state table and
// records one event per successful transition.
//
// An Order is not safe for concurrent use. Callers must not operate on two
// live instances of the same order identity at the same time.
type Order struct {
	s       Snapshot
	pending []event.Event
}

// PlaceParams holds the input for Place.
type PlaceParams struct {
	// ID is the external identifier. A UUID is generated when empty.
	ID              string
	TenantID        string
	CustomerID      string
	RestaurantID    string
	DeliveryAddress string
	Items           []LineItem
	DeliveryFee     decimal.Decimal
	ETAMinutes      *int
}

// Place creates a pending order. Line totals, subtotal and total are computed
// from the items; any Total set on the input items is ignored.
func Place(p PlaceParams, at time.Time) (*Order, error) {
	switch {
	case strings.TrimSpace(p.TenantID) == "":
		return nil, invalid("tenant_id", "required")
	case strings.TrimSpace(p.CustomerID) == "":
		return nil, invalid("customer_id", "required")
	case strings.TrimSpace(p.RestaurantID) == "":
		return nil, invalid("restaurant_id", "required")
	case strings.TrimSpace(p.DeliveryAddress) == "":
		return nil, invalid("delivery_address", "required")
	case len(p.Items) == 0:
		return nil, invalid("items", "at least one item required")
	case p.DeliveryFee.IsNegative():
		return nil, invalid("delivery_fee", "must not be negative")
	}
	if err := validateETA(p.ETAMinutes); err != nil {
		return nil, err
	}
	for _, item := range p.Items {
		if item.Quantity <= 0 {
			return nil, invalid("items", "quantity must be greater than 0 for "+item.MenuItemID)
		}
		if item.UnitPrice.IsNegative() {
			return nil, invalid("items", "unit price must not be negative for "+item.MenuItemID)
		}
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	items := make([]LineItem, len(p.Items))
	for i, item := range p.Items {
		items[i] = item
		items[i].Variants = append([]VariantSelection(nil), item.Variants...)
	}

	o := &Order{s: Snapshot{
		ID:              id,
		TenantID:        p.TenantID,
		CustomerID:      p.CustomerID,
		RestaurantID:    p.RestaurantID,
		DeliveryAddress: p.DeliveryAddress,
		Items:           items,
		DeliveryFee:     p.DeliveryFee,
		Status:          StatusPending,
		ETAMinutes:      copyInt(p.ETAMinutes),
		CreatedAt:       at,
	}}
	o.recalculate()
	return o, nil
}

// Restore rebuilds an order from stored state. Money totals are recomputed
// from the items so the total = subtotal + delivery fee invariant holds.
func Restore(s Snapshot) *Order {
	o := &Order{s: s}
	o.s.Items = append([]LineItem(nil), s.Items...)
	o.recalculate()
	return o
}

func (o *Order) recalculate() {
	subtotal := decimal.Zero
	for i := range o.s.Items {
		item := &o.s.Items[i]
		item.Total = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(item.Total)
	}
	o.s.Subtotal = subtotal
	o.s.Total = subtotal.Add(o.s.DeliveryFee)
}

// Snapshot returns a copy of the order state.
func (o *Order) Snapshot() Snapshot {
	s := o.s
	s.Items = make([]LineItem, len(o.s.Items))
	for i, item := range o.s.Items {
		s.Items[i] = item
		s.Items[i].Variants = append([]VariantSelection(nil), item.Variants...)
	}
	return s
}

func (o *Order) ID() string             { return o.s.ID }
func (o *Order) TenantID() string       { return o.s.TenantID }
func (o *Order) Status() Status         { return o.s.Status }
func (o *Order) Version() int           { return o.s.Version }
func (o *Order) InternalID() int64      { return o.s.InternalID }
func (o *Order) Total() decimal.Decimal { return o.s.Total }

// IsNew reports whether the order has never been persisted.
func (o *Order) IsNew() bool { return o.s.Version == 0 }

// AggregateID returns the external order identifier.
func (o *Order) AggregateID() string { return o.s.ID }

// MarkPersisted records the storage identity and version after a successful
// commit.
func (o *Order) MarkPersisted(internalID int64, version int) {
	o.s.InternalID = internalID
	o.s.Version = version
}

// PendingEvents returns a copy of the events raised since the last drain.
func (o *Order) PendingEvents() []event.Event {
	return append([]event.Event(nil), o.pending...)
}

// DrainEvents returns the pending events and clears the list.
func (o *Order) DrainEvents() []event.Event {
	out := o.pending
	o.pending = nil
	return out
}

// Confirm moves a pending order to confirmed.
func (o *Order) Confirm(at time.Time) error {
	return o.transition(TransitionConfirm, at, nil, func(m Meta) event.Event {
		o.s.ConfirmedAt = &at
		return Confirmed{Meta: m}
	})
}

// MarkReadyForPickup moves a confirmed order to ready for pickup.
func (o *Order) MarkReadyForPickup(at time.Time) error {
	return o.transition(TransitionMarkReadyForPickup, at, nil, func(m Meta) event.Event {
		o.s.ReadyAt = &at
		return ReadyForPickup{Meta: m}
	})
}

// MoveOutForDelivery hands the order to a courier. Both the courier reference
// and the estimated minutes to delivery are optional; a nil eta keeps the
// current estimate.
func (o *Order) MoveOutForDelivery(at time.Time, deliveryPersonID string, etaMinutes *int) error {
	validate := func() error { return validateETA(etaMinutes) }
	return o.transition(TransitionMoveOutForDelivery, at, validate, func(m Meta) event.Event {
		o.s.PickedUpAt = &at
		o.s.DeliveryPersonID = deliveryPersonID
		if etaMinutes != nil {
			o.s.ETAMinutes = copyInt(etaMinutes)
		}
		return OutForDelivery{
			Meta:             m,
			DeliveryPersonID: deliveryPersonID,
			ETAMinutes:       copyInt(o.s.ETAMinutes),
		}
	})
}

// CompleteDelivery marks an order out for delivery as delivered.
func (o *Order) CompleteDelivery(at time.Time) error {
	return o.transition(TransitionCompleteDelivery, at, nil, func(m Meta) event.Event {
		o.s.CompletedAt = &at
		return Delivered{Meta: m}
	})
}

// Cancel cancels a pending or confirmed order. reason is required.
func (o *Order) Cancel(at time.Time, reason string) error {
	validate := func() error {
		if strings.TrimSpace(reason) == "" {
			return invalid("reason", "required")
		}
		return nil
	}
	return o.transition(TransitionCancel, at, validate, func(m Meta) event.Event {
		o.s.CanceledAt = &at
		o.s.CancelReason = reason
		return Canceled{Meta: m, Reason: reason}
	})
}

// Fail marks a non-terminal order as failed. reason may be empty.
func (o *Order) Fail(at time.Time, reason string) error {
	return o.transition(TransitionFail, at, nil, func(m Meta) event.Event {
		o.s.FailedAt = &at
		o.s.FailureReason = reason
		return Failed{Meta: m, Reason: reason}
	})
}

// transition checks the state table, then validate, and only then applies
// mutate and the new status. A failed check leaves the order untouched.
func (o *Order) transition(t Transition, at time.Time, validate func() error, mutate func(Meta) event.Event) error {
	if !t.CanApply(o.s.Status) {
		return &InvalidTransitionError{
			OrderID:    o.s.ID,
			Current:    o.s.Status,
			Transition: t,
			Allowed:    t.AllowedFrom(),
		}
	}
	if validate != nil {
		if err := validate(); err != nil {
			return err
		}
	}

	e := mutate(Meta{
		ID:       uuid.New().String(),
		OrderID:  o.s.ID,
		TenantID: o.s.TenantID,
		At:       at,
	})
	o.s.Status = t.Target()
	o.pending = append(o.pending, e)
	return nil
}

func validateETA(eta *int) error {
	if eta != nil && *eta < 0 {
		return invalid("eta_minutes", "must not be negative")
	}
	return nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// SearchCriteria filters orders of one tenant. Zero-valued fields do not
// filter. Limit defaults to 50.
type SearchCriteria struct {
	TenantID     string
	Status       Status
	RestaurantID string
	CustomerID   string
	Limit        int
	Offset       int
}

// Repository loads and searches persisted orders. Writes go through the unit
// of work.
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Order, error)
	Search(ctx context.Context, c SearchCriteria) ([]*Order, error)
}

package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-admin/internal/domain/catalog"
	"github.com/xenking/delivery-admin/internal/event"
	"github.com/xenking/delivery-admin/internal/uow"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// ProductNotFoundError indicates a requested menu item is not on the
// restaurant's menu.
type ProductNotFoundError struct {
	MenuItemID string
}

func (e *ProductNotFoundError) Error() string {
	return "menu item " + e.MenuItemID + " not found"
}

// VariantNotFoundError indicates a selected variant does not belong to the
// menu item.
type VariantNotFoundError struct {
	MenuItemID string
	VariantID  string
}

func (e *VariantNotFoundError) Error() string {
	return "variant " + e.VariantID + " not found for menu item " + e.MenuItemID
}

// ItemRequest is one requested line of a new order.
type ItemRequest struct {
	MenuItemID string
	Quantity   int
	VariantIDs []string
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	TenantID        string
	CustomerID      string
	RestaurantID    string
	DeliveryAddress string
	Items           []ItemRequest
}

// Command requests one lifecycle transition of an existing order.
type Command struct {
	TenantID   string
	OrderID    string
	Transition Transition
	// Reason is required for cancel and optional for fail.
	Reason string
	// DeliveryPersonID and ETAMinutes apply to move_out_for_delivery.
	DeliveryPersonID string
	ETAMinutes       *int
}

// Publisher is the event bus the service publishes through.
type Publisher interface {
	event.Publisher
	Resume(ctx context.Context, derr *event.DispatchError) error
}

// UnitOfWork persists aggregates and publishes their events post-commit.
type UnitOfWork interface {
	SaveChanges(ctx context.Context, bus event.Publisher, aggregates ...uow.Aggregate) error
}

// Service handles order commands: it loads or builds the aggregate, applies
// the operation and saves it through the unit of work.
type Service struct {
	catalog catalog.Repository
	orders  Repository
	uow     UnitOfWork
	bus     Publisher
	now     func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	catalog catalog.Repository,
	orders Repository,
	uow UnitOfWork,
	bus Publisher,
) *Service {
	return &Service{
		catalog: catalog,
		orders:  orders,
		uow:     uow,
		bus:     bus,
		now:     time.Now,
	}
}

// PlaceOrder prices the requested items from the restaurant menu, creates a
// pending order and saves it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, invalid("items", "at least one item required")
	}

	r, err := s.catalog.GetRestaurant(ctx, req.TenantID, req.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.MenuItemID
	}

	// Batch fetch all menu items in a single query.
	fetched, err := s.catalog.GetMenuItems(ctx, r.ID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get menu items")
	}
	menu := make(map[string]catalog.MenuItem, len(fetched))
	for _, m := range fetched {
		menu[m.ID] = m
	}

	items := make([]LineItem, len(req.Items))
	for i, item := range req.Items {
		m, ok := menu[item.MenuItemID]
		if !ok {
			return nil, &ProductNotFoundError{MenuItemID: item.MenuItemID}
		}
		price := m.Price
		variants := make([]VariantSelection, 0, len(item.VariantIDs))
		for _, vid := range item.VariantIDs {
			v, ok := m.Variant(vid)
			if !ok {
				return nil, &VariantNotFoundError{MenuItemID: m.ID, VariantID: vid}
			}
			price = price.Add(v.PriceDelta)
			variants = append(variants, VariantSelection{Group: v.Group, Name: v.Name})
		}
		items[i] = LineItem{
			MenuItemID: m.ID,
			Name:       m.Name,
			Quantity:   item.Quantity,
			UnitPrice:  price.Round(2),
			Variants:   variants,
		}
	}

	var eta *int
	if r.PrepMinutes > 0 {
		eta = &r.PrepMinutes
	}
	o, err := Place(PlaceParams{
		TenantID:        req.TenantID,
		CustomerID:      req.CustomerID,
		RestaurantID:    r.ID,
		DeliveryAddress: req.DeliveryAddress,
		Items:           items,
		DeliveryFee:     r.DeliveryFee.Round(2),
		ETAMinutes:      eta,
	}, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.uow.SaveChanges(ctx, s.bus, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID()),
		zap.String("restaurant_id", r.ID),
		zap.String("total", o.Total().StringFixed(2)),
	)
	return o, nil
}

// Apply performs cmd on the stored order and saves it.
//
// When the change was committed but an event handler failed, Apply returns
// the updated order together with the *event.DispatchError. Callers should
// treat the command as successful and report the delivery failure; see
// Redispatch.
func (s *Service) Apply(ctx context.Context, cmd Command) (*Order, error) {
	if !cmd.Transition.IsValid() {
		return nil, invalid("transition", "unknown transition "+string(cmd.Transition))
	}

	o, err := s.orders.Get(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	now := s.now()
	switch cmd.Transition {
	case TransitionConfirm:
		err = o.Confirm(now)
	case TransitionMarkReadyForPickup:
		err = o.MarkReadyForPickup(now)
	case TransitionMoveOutForDelivery:
		err = o.MoveOutForDelivery(now, cmd.DeliveryPersonID, cmd.ETAMinutes)
	case TransitionCompleteDelivery:
		err = o.CompleteDelivery(now)
	case TransitionCancel:
		err = o.Cancel(now, cmd.Reason)
	case TransitionFail:
		err = o.Fail(now, cmd.Reason)
	}
	if err != nil {
		return nil, err
	}

	if err := s.uow.SaveChanges(ctx, s.bus, o); err != nil {
		if errors.Is(err, event.ErrDispatch) {
			return o, err
		}
		return nil, errors.Wrap(err, "save order")
	}

	zctx.From(ctx).Info("Order transitioned",
		zap.String("order_id", o.ID()),
		zap.String("transition", string(cmd.Transition)),
		zap.String("status", string(o.Status())),
	)
	return o, nil
}

// Redispatch retries delivery of the events a previous dispatch failure left
// unprocessed. Handlers that already succeeded are not invoked again.
func (s *Service) Redispatch(ctx context.Context, derr *event.DispatchError) error {
	return s.bus.Resume(ctx, derr)
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, tenantID, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// Search returns orders matching c, newest first.
func (s *Service) Search(ctx context.Context, c SearchCriteria) ([]*Order, error) {
	if c.Status != "" && !c.Status.IsValid() {
		return nil, invalid("status", "unknown status "+string(c.Status))
	}
	switch {
	case c.Limit <= 0:
		c.Limit = defaultSearchLimit
	case c.Limit > maxSearchLimit:
		c.Limit = maxSearchLimit
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
	orders, err := s.orders.Search(ctx, c)
	if err != nil {
		return nil, errors.Wrap(err, "search orders")
	}
	return orders, nil
}

// Package handler implements the HTTP API of the order service.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/delivery-admin/internal/domain/auth"
	"github.com/xenking/delivery-admin/internal/domain/order"
	"github.com/xenking/delivery-admin/internal/event"
	"github.com/xenking/delivery-admin/internal/tracking"
)

// API key scopes.
const (
	ScopeOrdersRead  = "orders:read"
	ScopeOrdersWrite = "orders:write"
)

// OrderService is the order command and query surface.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Apply(ctx context.Context, cmd order.Command) (*order.Order, error)
	Redispatch(ctx context.Context, derr *event.DispatchError) error
	Get(ctx context.Context, tenantID, id string) (*order.Order, error)
	Search(ctx context.Context, c order.SearchCriteria) ([]*order.Order, error)
}

// TrackingReader reads the tracking view of an order.
type TrackingReader interface {
	Get(ctx context.Context, tenantID, orderID string) (*tracking.View, error)
}

// Handler serves the /api routes.
type Handler struct {
	orders   OrderService
	tracking TrackingReader
	apikeys  auth.Repository
	pepper   []byte
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	orders OrderService,
	tracking TrackingReader,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		orders:   orders,
		tracking: tracking,
		apikeys:  apikeys,
		pepper:   pepper,
	}
}

// Routes returns the API router, to be mounted under /api. Middlewares in mw
// run after authentication, so they can see the caller's key.
func (h *Handler) Routes(mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.authenticate)
	r.Use(mw...)

	r.Route("/orders", func(r chi.Router) {
		r.With(requireScope(ScopeOrdersRead)).Get("/", h.searchOrders)
		r.With(requireScope(ScopeOrdersWrite)).Post("/", h.placeOrder)

		r.Route("/{id}", func(r chi.Router) {
			r.With(requireScope(ScopeOrdersRead)).Get("/", h.getOrder)
			r.With(requireScope(ScopeOrdersRead)).Get("/tracking", h.getTracking)

			r.Group(func(r chi.Router) {
				r.Use(requireScope(ScopeOrdersWrite))
				r.Post("/confirm", h.transition(order.TransitionConfirm))
				r.Post("/ready", h.transition(order.TransitionMarkReadyForPickup))
				r.Post("/dispatch", h.transition(order.TransitionMoveOutForDelivery))
				r.Post("/deliver", h.transition(order.TransitionCompleteDelivery))
				r.Post("/cancel", h.transition(order.TransitionCancel))
				r.Post("/fail", h.transition(order.TransitionFail))
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

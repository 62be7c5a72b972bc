package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-admin/internal/domain/catalog"
	"github.com/xenking/delivery-admin/internal/domain/order"
	"github.com/xenking/delivery-admin/internal/event"
	"github.com/xenking/delivery-admin/internal/tracking"
	"github.com/xenking/delivery-admin/internal/uow"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := decodePlaceOrder(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		TenantID:        tenantOf(r),
		CustomerID:      body.CustomerID,
		RestaurantID:    body.RestaurantID,
		DeliveryAddress: body.DeliveryAddress,
		Items:           body.Items,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID())
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) searchOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := order.SearchCriteria{
		TenantID:     tenantOf(r),
		Status:       order.Status(q.Get("status")),
		RestaurantID: q.Get("restaurantId"),
		CustomerID:   q.Get("customerId"),
	}
	for name, dst := range map[string]*int{"limit": &c.Limit, "offset": &c.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusUnprocessableEntity, name+": must be a non-negative integer")
			return
		}
		*dst = n
	}

	orders, err := h.orders.Search(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, o := range orders {
			encodeOrder(e, o)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getTracking(w http.ResponseWriter, r *http.Request) {
	v, err := h.tracking.Get(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTracking(e, v) })
}

func (h *Handler) transition(t order.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		body, err := decodeTransition(data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		ctx := r.Context()
		o, err := h.orders.Apply(ctx, order.Command{
			TenantID:         tenantOf(r),
			OrderID:          chi.URLParam(r, "id"),
			Transition:       t,
			Reason:           body.Reason,
			DeliveryPersonID: body.DeliveryPersonID,
			ETAMinutes:       body.ETAMinutes,
		})

		// The transition is committed; only event delivery failed.
		var derr *event.DispatchError
		if o != nil && errors.As(err, &derr) {
			lg := zctx.From(ctx).With(
				zap.String("order_id", o.ID()),
				zap.String("handler", derr.Handler),
			)
			lg.Warn("Order event delivery failed, retrying", zap.Error(err))
			if rerr := h.orders.Redispatch(ctx, derr); rerr != nil {
				lg.Error("Order event redelivery failed", zap.Error(rerr))
			}
			err = nil
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
	}
}

// fail maps a service error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		productErr *order.ProductNotFoundError
		variantErr *order.VariantNotFoundError
	)
	switch {
	case errors.Is(err, order.ErrValidation),
		errors.As(err, &productErr),
		errors.As(err, &variantErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "order was modified concurrently, retry")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "restaurant not found")
	case errors.Is(err, tracking.ErrNotFound):
		writeError(w, http.StatusNotFound, "no tracking information for order")
	case errors.Is(err, uow.ErrPersistence):
		zctx.From(r.Context()).Error("Persistence failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-admin/internal/domain/order"
	"github.com/xenking/delivery-admin/internal/tracking"
)

const maxBodyBytes = 1 << 20

type placeOrderBody struct {
	CustomerID      string
	RestaurantID    string
	DeliveryAddress string
	Items           []order.ItemRequest
}

type transitionBody struct {
	Reason           string
	DeliveryPersonID string
	ETAMinutes       *int
}

// readBody returns the request body, or nil when it is empty.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

func decodePlaceOrder(data []byte) (placeOrderBody, error) {
	var b placeOrderBody
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customerId":
			b.CustomerID, err = d.Str()
		case "restaurantId":
			b.RestaurantID, err = d.Str()
		case "deliveryAddress":
			b.DeliveryAddress, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				b.Items = append(b.Items, item)
				return err
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, string(key))
	})
	return b, err
}

func decodeItem(d *jx.Decoder) (order.ItemRequest, error) {
	var item order.ItemRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "menuItemId":
			item.MenuItemID, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int()
		case "variantIds":
			err = d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				item.VariantIDs = append(item.VariantIDs, id)
				return err
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, string(key))
	})
	return item, err
}

func decodeTransition(data []byte) (transitionBody, error) {
	var b transitionBody
	if len(data) == 0 {
		return b, nil
	}
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "reason":
			b.Reason, err = d.Str()
		case "deliveryPersonId":
			b.DeliveryPersonID, err = d.Str()
		case "etaMinutes":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v int
			v, err = d.Int()
			b.ETAMinutes = &v
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, string(key))
	})
	return b, err
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		return
	}
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	s := o.Snapshot()
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("customerId")
	e.Str(s.CustomerID)
	e.FieldStart("restaurantId")
	e.Str(s.RestaurantID)
	e.FieldStart("deliveryAddress")
	e.Str(s.DeliveryAddress)
	e.FieldStart("status")
	e.Str(string(s.Status))

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range s.Items {
		e.ObjStart()
		e.FieldStart("menuItemId")
		e.Str(item.MenuItemID)
		e.FieldStart("name")
		e.Str(item.Name)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("unitPrice")
		encodeMoney(e, item.UnitPrice)
		e.FieldStart("total")
		encodeMoney(e, item.Total)
		if len(item.Variants) > 0 {
			e.FieldStart("variants")
			e.ArrStart()
			for _, v := range item.Variants {
				e.ObjStart()
				e.FieldStart("group")
				e.Str(v.Group)
				e.FieldStart("name")
				e.Str(v.Name)
				e.ObjEnd()
			}
			e.ArrEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	encodeMoney(e, s.Subtotal)
	e.FieldStart("deliveryFee")
	encodeMoney(e, s.DeliveryFee)
	e.FieldStart("total")
	encodeMoney(e, s.Total)

	if s.ETAMinutes != nil {
		e.FieldStart("etaMinutes")
		e.Int(*s.ETAMinutes)
	}
	if s.DeliveryPersonID != "" {
		e.FieldStart("deliveryPersonId")
		e.Str(s.DeliveryPersonID)
	}
	if s.CancelReason != "" {
		e.FieldStart("cancelReason")
		e.Str(s.CancelReason)
	}
	if s.FailureReason != "" {
		e.FieldStart("failureReason")
		e.Str(s.FailureReason)
	}
	encodeTime(e, "createdAt", &s.CreatedAt)
	encodeTime(e, "confirmedAt", s.ConfirmedAt)
	encodeTime(e, "readyAt", s.ReadyAt)
	encodeTime(e, "pickedUpAt", s.PickedUpAt)
	encodeTime(e, "completedAt", s.CompletedAt)
	encodeTime(e, "canceledAt", s.CanceledAt)
	encodeTime(e, "failedAt", s.FailedAt)
	e.FieldStart("version")
	e.Int(s.Version)
	e.ObjEnd()
}

func encodeTracking(e *jx.Encoder, v *tracking.View) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(v.OrderID)
	e.FieldStart("status")
	e.Str(string(v.Status))
	encodeTime(e, "updatedAt", &v.UpdatedAt)
	if v.DeliveryPersonID != "" {
		e.FieldStart("deliveryPersonId")
		e.Str(v.DeliveryPersonID)
	}
	if v.ETAMinutes != nil {
		e.FieldStart("etaMinutes")
		e.Int(*v.ETAMinutes)
	}
	if v.Reason != "" {
		e.FieldStart("reason")
		e.Str(v.Reason)
	}
	e.ObjEnd()
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

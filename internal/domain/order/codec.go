package order

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/delivery-admin/internal/event"
)

// Encode writes c as a JSON object.
func (c StatusChange) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("eventId")
	e.Str(c.EventID)
	e.FieldStart("kind")
	e.Str(string(c.Kind))
	e.FieldStart("orderId")
	e.Str(c.OrderID)
	e.FieldStart("tenantId")
	e.Str(c.TenantID)
	e.FieldStart("status")
	e.Str(string(c.Status))
	e.FieldStart("occurredAt")
	e.Str(c.At.UTC().Format(time.RFC3339Nano))
	if c.Reason != "" {
		e.FieldStart("reason")
		e.Str(c.Reason)
	}
	if c.DeliveryPersonID != "" {
		e.FieldStart("deliveryPersonId")
		e.Str(c.DeliveryPersonID)
	}
	if c.ETAMinutes != nil {
		e.FieldStart("etaMinutes")
		e.Int(*c.ETAMinutes)
	}
	e.ObjEnd()
}

// JSON returns the encoded form of c.
func (c StatusChange) JSON() []byte {
	var e jx.Encoder
	c.Encode(&e)
	return e.Bytes()
}

// DecodeChange parses a StatusChange written by Encode.
func DecodeChange(data []byte) (StatusChange, error) {
	var c StatusChange
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "eventId":
			v, err := d.Str()
			c.EventID = v
			return err
		case "kind":
			v, err := d.Str()
			c.Kind = event.Kind(v)
			return err
		case "orderId":
			v, err := d.Str()
			c.OrderID = v
			return err
		case "tenantId":
			v, err := d.Str()
			c.TenantID = v
			return err
		case "status":
			v, err := d.Str()
			c.Status = Status(v)
			return err
		case "occurredAt":
			v, err := d.Str()
			if err != nil {
				return err
			}
			c.At, err = time.Parse(time.RFC3339Nano, v)
			return err
		case "reason":
			v, err := d.Str()
			c.Reason = v
			return err
		case "deliveryPersonId":
			v, err := d.Str()
			c.DeliveryPersonID = v
			return err
		case "etaMinutes":
			v, err := d.Int()
			c.ETAMinutes = &v
			return err
		default:
			return d.Skip()
		}
	})
	return c, err
}

// Package tracking maintains a Redis read model of each order's latest
// delivery status.
package tracking

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/delivery-admin/internal/domain/order"
)

// ErrNotFound is returned when no tracking entry exists for an order.
var ErrNotFound = errors.New("tracking entry not found")

// View is the customer-facing tracking state of an order.
type View struct {
	OrderID          string
	Status           order.Status
	UpdatedAt        time.Time
	DeliveryPersonID string
	ETAMinutes       *int
	Reason           string
}

// Store writes and reads tracking views. Entries expire after ttl.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewStore returns a Store using rdb. Keys are "<prefix>:<tenant>:<order>".
func NewStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(tenantID, orderID string) string {
	return s.prefix + ":" + tenantID + ":" + orderID
}

// Record merges c into the order's current view. Courier and ETA are only
// written by changes that carry them, so they survive later transitions. It
// is an order.StatusChange handler.
func (s *Store) Record(ctx context.Context, c order.StatusChange) error {
	key := s.key(c.TenantID, c.OrderID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields(c))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "record tracking of %q", c.OrderID)
	}
	return nil
}

// Get returns the tracking view of an order.
func (s *Store) Get(ctx context.Context, tenantID, orderID string) (*View, error) {
	m, err := s.rdb.HGetAll(ctx, s.key(tenantID, orderID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "get tracking of %q", orderID)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return parseView(orderID, m)
}

// fields returns the hash fields c sets.
func fields(c order.StatusChange) map[string]any {
	f := map[string]any{
		"status":     string(c.Status),
		"updated_at": c.At.UTC().Format(time.RFC3339Nano),
		"reason":     c.Reason,
	}
	if c.DeliveryPersonID != "" {
		f["delivery_person_id"] = c.DeliveryPersonID
	}
	if c.ETAMinutes != nil {
		f["eta_minutes"] = strconv.Itoa(*c.ETAMinutes)
	}
	return f
}

func parseView(orderID string, m map[string]string) (*View, error) {
	v := &View{
		OrderID:          orderID,
		Status:           order.Status(m["status"]),
		DeliveryPersonID: m["delivery_person_id"],
		Reason:           m["reason"],
	}
	if ts := m["updated_at"]; ts != "" {
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, errors.Wrap(err, "parse updated_at")
		}
		v.UpdatedAt = at
	}
	if eta, ok := m["eta_minutes"]; ok {
		n, err := strconv.Atoi(eta)
		if err != nil {
			return nil, errors.Wrap(err, "parse eta_minutes")
		}
		v.ETAMinutes = &n
	}
	return v, nil
}

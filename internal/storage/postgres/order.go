package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/delivery-admin/internal/domain/order"
)

// ErrConcurrentUpdate is returned when the stored order changed since it was
// loaded, or an order with the same identity already exists.
var ErrConcurrentUpdate = order.ErrConcurrentUpdate

const orderColumns = `id, external_id, tenant_id, customer_id, restaurant_id, delivery_address,
	items, delivery_fee, subtotal, total, status, eta_minutes, delivery_person_id,
	cancel_reason, failure_reason, created_at, confirmed_at, ready_at, picked_up_at,
	completed_at, canceled_at, failed_at, version`

const (
	getOrderSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE tenant_id = $1 AND external_id = $2`

	insertOrderSQL = `INSERT INTO orders (external_id, tenant_id, customer_id, restaurant_id,
		delivery_address, items, delivery_fee, subtotal, total, status, eta_minutes,
		delivery_person_id, cancel_reason, failure_reason, created_at, confirmed_at, ready_at,
		picked_up_at, completed_at, canceled_at, failed_at, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, 1)
	RETURNING id`

	updateOrderSQL = `UPDATE orders SET status = $3, eta_minutes = $4, delivery_person_id = $5,
		cancel_reason = $6, failure_reason = $7, confirmed_at = $8, ready_at = $9,
		picked_up_at = $10, completed_at = $11, canceled_at = $12, failed_at = $13,
		version = version + 1
	WHERE id = $1 AND version = $2`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get loads an order of the tenant by its external ID.
func (r *OrderRepository) Get(ctx context.Context, tenantID, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, tenantID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return order.Restore(s), nil
}

// Search returns the tenant's orders matching c, newest first.
func (r *OrderRepository) Search(ctx context.Context, c order.SearchCriteria) ([]*order.Order, error) {
	query, args := searchQuery(c)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "search orders")
	}
	snaps, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "search orders")
	}
	out := make([]*order.Order, len(snaps))
	for i, s := range snaps {
		out[i] = order.Restore(s)
	}
	return out, nil
}

func searchQuery(c order.SearchCriteria) (string, []any) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{c.TenantID}
	)
	add := func(column string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if c.Status != "" {
		add("status", string(c.Status))
	}
	if c.RestaurantID != "" {
		add("restaurant_id", c.RestaurantID)
	}
	if c.CustomerID != "" {
		add("customer_id", c.CustomerID)
	}
	args = append(args, c.Limit, c.Offset)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(orderColumns)
	b.WriteString(" FROM orders WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	fmt.Fprintf(&b, " ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

func scanOrder(row pgx.CollectableRow) (order.Snapshot, error) {
	var (
		s      order.Snapshot
		items  []byte
		status string
	)
	err := row.Scan(
		&s.InternalID, &s.ID, &s.TenantID, &s.CustomerID, &s.RestaurantID, &s.DeliveryAddress,
		&items, &s.DeliveryFee, &s.Subtotal, &s.Total, &status, &s.ETAMinutes, &s.DeliveryPersonID,
		&s.CancelReason, &s.FailureReason, &s.CreatedAt, &s.ConfirmedAt, &s.ReadyAt, &s.PickedUpAt,
		&s.CompletedAt, &s.CanceledAt, &s.FailedAt, &s.Version,
	)
	if err != nil {
		return s, err
	}
	s.Status = order.Status(status)
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return s, errors.Wrapf(err, "decode items of order %q", s.ID)
	}
	return s, nil
}

// saveOrder inserts or updates o and returns its surrogate id and new
// version. The in-memory order is not modified.
func saveOrder(ctx context.Context, q querier, o *order.Order) (int64, int, error) {
	s := o.Snapshot()
	if o.IsNew() {
		items, err := json.Marshal(s.Items)
		if err != nil {
			return 0, 0, errors.Wrap(err, "marshal order items")
		}
		var id int64
		err = q.QueryRow(ctx, insertOrderSQL,
			s.ID, s.TenantID, s.CustomerID, s.RestaurantID, s.DeliveryAddress,
			items, s.DeliveryFee, s.Subtotal, s.Total, string(s.Status), s.ETAMinutes,
			s.DeliveryPersonID, s.CancelReason, s.FailureReason, s.CreatedAt, s.ConfirmedAt, s.ReadyAt,
			s.PickedUpAt, s.CompletedAt, s.CanceledAt, s.FailedAt,
		).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return 0, 0, errors.Wrapf(ErrConcurrentUpdate, "insert order %q", s.ID)
			}
			return 0, 0, errors.Wrapf(err, "insert order %q", s.ID)
		}
		return id, 1, nil
	}

	tag, err := q.Exec(ctx, updateOrderSQL,
		s.InternalID, s.Version, string(s.Status), s.ETAMinutes, s.DeliveryPersonID,
		s.CancelReason, s.FailureReason, s.ConfirmedAt, s.ReadyAt,
		s.PickedUpAt, s.CompletedAt, s.CanceledAt, s.FailedAt,
	)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "update order %q", s.ID)
	}
	if tag.RowsAffected() == 0 {
		return 0, 0, errors.Wrapf(ErrConcurrentUpdate, "update order %q at version %d", s.ID, s.Version)
	}
	return s.InternalID, s.Version + 1, nil
}

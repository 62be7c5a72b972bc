package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/delivery-admin/internal/domain/order"
	"github.com/xenking/delivery-admin/internal/event"
	"github.com/xenking/delivery-admin/internal/uow"
)

const insertEventSQL = `INSERT INTO order_events (event_id, order_id, kind, occurred_at, payload)
	VALUES ($1, $2, $3, $4, $5)`

var _ uow.Committer = (*Committer)(nil)

// Committer persists aggregates and their pending events in one transaction.
type Committer struct {
	pool *pgxpool.Pool
}

// NewCommitter returns a Committer that uses the given pool.
func NewCommitter(pool *pgxpool.Pool) *Committer {
	return &Committer{pool: pool}
}

// Commit stores every aggregate or none of them. Surrogate ids and versions
// are applied to the in-memory orders only after COMMIT succeeds.
func (c *Committer) Commit(ctx context.Context, aggregates []uow.Aggregate) (rerr error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var persisted []func()
	for _, a := range aggregates {
		switch a := a.(type) {
		case *order.Order:
			id, version, err := saveOrder(ctx, tx, a)
			if err != nil {
				return err
			}
			if err := insertEvents(ctx, tx, id, a.PendingEvents()); err != nil {
				return errors.Wrapf(err, "order %q events", a.ID())
			}
			persisted = append(persisted, func() { a.MarkPersisted(id, version) })
		default:
			return errors.Errorf("unsupported aggregate %T", a)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	for _, fn := range persisted {
		fn()
	}
	return nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, orderID int64, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertEventSQL, e.EventID(), orderID, string(e.Kind()), e.OccurredAt(), eventPayload(e))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func eventPayload(e event.Event) []byte {
	if c, ok := order.ChangeOf(e); ok {
		return c.JSON()
	}
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("eventId")
	enc.Str(e.EventID())
	enc.FieldStart("kind")
	enc.Str(string(e.Kind()))
	enc.ObjEnd()
	return enc.Bytes()
}

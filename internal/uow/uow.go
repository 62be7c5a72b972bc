// Package uow ties persistence of aggregates and publication of their domain
// events into one ordered operation: events are published only after the
// state change that raised them is committed, and at most once.
package uow

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-admin/internal/event"
)

// ErrPersistence matches every *PersistenceError.
var ErrPersistence = errors.New("persistence failed")

// PersistenceError reports that a commit did not happen. Nothing was
// published and pending events were kept, so SaveChanges may be retried with
// the same aggregates.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist changes: %v", e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Aggregate is an event-bearing aggregate root.
type Aggregate interface {
	AggregateID() string
	// PendingEvents returns the raised events without clearing them.
	PendingEvents() []event.Event
	// DrainEvents returns the raised events and clears them.
	DrainEvents() []event.Event
}

// Committer durably persists the state of every aggregate in one atomic
// operation: either all of them are stored or none is.
type Committer interface {
	Commit(ctx context.Context, aggregates []Aggregate) error
}

// UnitOfWork coordinates commit and post-commit event publication.
type UnitOfWork struct {
	committer Committer
}

// New creates a UnitOfWork that persists through c.
func New(c Committer) *UnitOfWork {
	return &UnitOfWork{committer: c}
}

// SaveChanges commits aggregates and then publishes their pending events
// through bus in one PublishRange call, ordered by aggregate as supplied and
// then by raise order.
//
// A commit failure returns *PersistenceError and leaves every aggregate's
// pending events intact. After a successful commit the events are drained
// before publishing, so a failing handler never causes a second delivery: the
// bus error (usually *event.DispatchError) is returned as-is and must be
// retried through the bus, not through SaveChanges.
func (u *UnitOfWork) SaveChanges(ctx context.Context, bus event.Publisher, aggregates ...Aggregate) error {
	if len(aggregates) == 0 {
		return nil
	}
	if err := u.committer.Commit(ctx, aggregates); err != nil {
		return &PersistenceError{Err: err}
	}

	var events []event.Event
	for _, a := range aggregates {
		events = append(events, a.DrainEvents()...)
	}
	if len(events) == 0 {
		return nil
	}

	if err := bus.PublishRange(ctx, events); err != nil {
		zctx.From(ctx).Error("Event delivery failed after commit",
			zap.Int("events", len(events)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

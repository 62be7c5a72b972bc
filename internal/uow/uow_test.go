package uow

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-admin/internal/event"
)

// --- Mock implementations ---

type raised struct {
	id  string
	agg string
}

func (raised) Kind() event.Kind        { return "test.raised" }
func (e raised) EventID() string       { return e.id }
func (e raised) AggregateID() string   { return e.agg }
func (e raised) OccurredAt() time.Time { return time.Time{} }

type mockAggregate struct {
	id      string
	pending []event.Event
}

func newAggregate(id string, eventIDs ...string) *mockAggregate {
	a := &mockAggregate{id: id}
	for _, e := range eventIDs {
		a.pending = append(a.pending, raised{id: e, agg: id})
	}
	return a
}

func (a *mockAggregate) AggregateID() string { return a.id }

func (a *mockAggregate) PendingEvents() []event.Event {
	return append([]event.Event(nil), a.pending...)
}

func (a *mockAggregate) DrainEvents() []event.Event {
	out := a.pending
	a.pending = nil
	return out
}

type mockCommitter struct {
	calls     int
	committed []string
	err       error
}

func (m *mockCommitter) Commit(_ context.Context, aggregates []Aggregate) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	for _, a := range aggregates {
		m.committed = append(m.committed, a.AggregateID())
	}
	return nil
}

type mockBus struct {
	calls     int
	published []string
	err       error
}

func (m *mockBus) PublishRange(_ context.Context, events []event.Event) error {
	m.calls++
	for _, e := range events {
		m.published = append(m.published, e.EventID())
	}
	return m.err
}

// --- Tests ---

func TestSaveChanges_PublishesAfterCommitInOrder(t *testing.T) {
	c := &mockCommitter{}
	bus := &mockBus{}
	a1 := newAggregate("o1", "e1", "e2")
	a2 := newAggregate("o2", "e3", "e4")

	err := New(c).SaveChanges(context.Background(), bus, a1, a2)
	require.NoError(t, err)

	assert.Equal(t, []string{"o1", "o2"}, c.committed)
	assert.Equal(t, 1, bus.calls)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, bus.published)
	assert.Empty(t, a1.PendingEvents())
	assert.Empty(t, a2.PendingEvents())
}

func TestSaveChanges_CommitFailure(t *testing.T) {
	cause := errors.New("connection reset")
	c := &mockCommitter{err: cause}
	bus := &mockBus{}
	a1 := newAggregate("o1", "e1")
	a2 := newAggregate("o2", "e2", "e3")

	err := New(c).SaveChanges(context.Background(), bus, a1, a2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)

	assert.Zero(t, bus.calls)
	assert.Len(t, a1.PendingEvents(), 1)
	assert.Len(t, a2.PendingEvents(), 2)

	// Retry with the same instances once storage recovers.
	c.err = nil
	require.NoError(t, New(c).SaveChanges(context.Background(), bus, a1, a2))
	assert.Equal(t, []string{"e1", "e2", "e3"}, bus.published)
	assert.Empty(t, a1.PendingEvents())
}

func TestSaveChanges_DispatchFailureIsNotPersistenceFailure(t *testing.T) {
	c := &mockCommitter{}
	dispatchErr := &event.DispatchError{Event: raised{id: "e1"}, Handler: "notify", Err: errors.New("down")}
	bus := &mockBus{err: dispatchErr}
	a := newAggregate("o1", "e1", "e2")

	err := New(c).SaveChanges(context.Background(), bus, a)
	require.Error(t, err)
	assert.ErrorIs(t, err, event.ErrDispatch)
	assert.NotErrorIs(t, err, ErrPersistence)

	// Events were drained before publishing: a repeat call publishes nothing.
	assert.Empty(t, a.PendingEvents())
	require.NoError(t, New(c).SaveChanges(context.Background(), bus, a))
	assert.Equal(t, 1, bus.calls)
	assert.Equal(t, 2, c.calls)
}

func TestSaveChanges_NoEvents(t *testing.T) {
	c := &mockCommitter{}
	bus := &mockBus{}

	require.NoError(t, New(c).SaveChanges(context.Background(), bus, newAggregate("o1")))
	assert.Equal(t, 1, c.calls)
	assert.Zero(t, bus.calls)

	require.NoError(t, New(c).SaveChanges(context.Background(), bus))
	assert.Equal(t, 1, c.calls)
}

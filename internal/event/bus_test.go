package event

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test events ---

type pinged struct {
	id  string
	agg string
}

func (pinged) Kind() Kind              { return "test.pinged" }
func (e pinged) EventID() string       { return e.id }
func (e pinged) AggregateID() string   { return e.agg }
func (e pinged) OccurredAt() time.Time { return time.Time{} }

type ponged struct {
	id string
}

func (ponged) Kind() Kind            { return "test.ponged" }
func (e ponged) EventID() string     { return e.id }
func (ponged) AggregateID() string   { return "agg" }
func (ponged) OccurredAt() time.Time { return time.Time{} }

type orphan struct{}

func (orphan) Kind() Kind            { return "test.orphan" }
func (orphan) EventID() string       { return "orphan" }
func (orphan) AggregateID() string   { return "agg" }
func (orphan) OccurredAt() time.Time { return time.Time{} }

// --- Helpers ---

// recorder collects "<handler>:<event id>" entries in invocation order.
type recorder struct {
	calls []string
	fail  map[string]error
}

func (r *recorder) ping(name string) Handler[pinged] {
	return HandlerFunc[pinged](func(_ context.Context, e pinged) error {
		r.calls = append(r.calls, name+":"+e.id)
		return r.fail[name+":"+e.id]
	})
}

func (r *recorder) pong(name string) Handler[ponged] {
	return HandlerFunc[ponged](func(_ context.Context, e ponged) error {
		r.calls = append(r.calls, name+":"+e.id)
		return r.fail[name+":"+e.id]
	})
}

func newTestBus(t *testing.T, reg *Registry) *Bus {
	t.Helper()
	b, err := NewBus(reg)
	require.NoError(t, err)
	return b
}

// --- Tests ---

func TestPublishRange_RoutesByKindInOrder(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	Register(reg, "ping-a", rec.ping("a"))
	Register(reg, "pong-b", rec.pong("b"))
	Register(reg, "ping-c", rec.ping("c"))
	bus := newTestBus(t, reg)

	err := bus.PublishRange(context.Background(), []Event{
		pinged{id: "1"},
		ponged{id: "2"},
		orphan{},
		pinged{id: "3"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a:1", "c:1", "b:2", "a:3", "c:3"}, rec.calls)
}

func TestPublishRange_NoHandlers(t *testing.T) {
	bus := newTestBus(t, NewRegistry())

	require.NoError(t, bus.PublishRange(context.Background(), []Event{orphan{}, pinged{id: "1"}}))
	require.NoError(t, bus.PublishRange(context.Background(), nil))
}

func TestPublishRange_StopsOnFirstFailure(t *testing.T) {
	cause := errors.New("smtp down")
	rec := &recorder{fail: map[string]error{"a:2": cause}}
	reg := NewRegistry()
	Register(reg, "ping-a", rec.ping("a"))
	Register(reg, "ping-b", rec.ping("b"))
	bus := newTestBus(t, reg)

	err := bus.PublishRange(context.Background(), []Event{
		pinged{id: "1"},
		pinged{id: "2"},
		pinged{id: "3"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatch)
	assert.ErrorIs(t, err, cause)

	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "ping-a", derr.Handler)
	assert.Equal(t, "2", derr.Event.EventID())
	assert.Len(t, derr.Unprocessed(), 2)

	// b:2 and everything for event 3 never ran.
	assert.Equal(t, []string{"a:1", "b:1", "a:2"}, rec.calls)
}

func TestResume_DeliversOnlyUnprocessedWork(t *testing.T) {
	rec := &recorder{fail: map[string]error{"b:1": errors.New("timeout")}}
	reg := NewRegistry()
	Register(reg, "ping-a", rec.ping("a"))
	Register(reg, "ping-b", rec.ping("b"))
	Register(reg, "ping-c", rec.ping("c"))
	bus := newTestBus(t, reg)

	err := bus.PublishRange(context.Background(), []Event{pinged{id: "1"}, pinged{id: "2"}})
	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, []string{"a:1", "b:1"}, rec.calls)

	rec.calls = nil
	rec.fail = nil
	require.NoError(t, bus.Resume(context.Background(), derr))

	// a:1 already succeeded and is not repeated.
	assert.Equal(t, []string{"b:1", "c:1", "a:2", "b:2", "c:2"}, rec.calls)
}

func TestResume_FailsAgain(t *testing.T) {
	rec := &recorder{fail: map[string]error{"a:2": errors.New("still down")}}
	reg := NewRegistry()
	Register(reg, "ping-a", rec.ping("a"))
	bus := newTestBus(t, reg)

	err := bus.PublishRange(context.Background(), []Event{pinged{id: "1"}, pinged{id: "2"}, pinged{id: "3"}})
	var first *DispatchError
	require.ErrorAs(t, err, &first)

	err = bus.Resume(context.Background(), first)
	var second *DispatchError
	require.ErrorAs(t, err, &second)
	assert.Equal(t, "2", second.Event.EventID())
	assert.Len(t, second.Unprocessed(), 2)
}

func TestNewBus_SnapshotsRegistry(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	Register(reg, "ping-a", rec.ping("a"))
	bus := newTestBus(t, reg)

	Register(reg, "ping-late", rec.ping("late"))

	require.NoError(t, bus.PublishRange(context.Background(), []Event{pinged{id: "1"}}))
	assert.Equal(t, []string{"a:1"}, rec.calls)
	assert.Equal(t, map[Kind]int{"test.pinged": 2}, reg.Kinds())
}

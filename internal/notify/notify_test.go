package notify

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-admin/internal/domain/order"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockChannel struct {
	declared   []string
	kind       string
	published  []published
	declareErr error
	publishErr error
}

func (m *mockChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	m.declared = append(m.declared, name)
	m.kind = kind
	return m.declareErr
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestNew_DeclaresFanout(t *testing.T) {
	ch := &mockChannel{}

	_, err := New(ch, "order.events")
	require.NoError(t, err)
	assert.Equal(t, []string{"order.events"}, ch.declared)
	assert.Equal(t, amqp.ExchangeFanout, ch.kind)
}

func TestNew_DeclareError(t *testing.T) {
	_, err := New(&mockChannel{declareErr: errors.New("access refused")}, "order.events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declare exchange")
}

func TestNotify(t *testing.T) {
	ch := &mockChannel{}
	n, err := New(ch, "order.events")
	require.NoError(t, err)

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	c := order.StatusChange{
		EventID:  "evt-1",
		Kind:     order.KindCanceled,
		OrderID:  "ord-1",
		TenantID: "tenant-a",
		Status:   order.StatusCanceled,
		At:       at,
		Reason:   "customer request",
	}
	require.NoError(t, n.Notify(context.Background(), c))

	require.Len(t, ch.published, 1)
	p := ch.published[0]
	assert.Equal(t, "order.events", p.exchange)
	assert.Equal(t, "order.canceled", p.key)
	assert.Equal(t, "evt-1", p.msg.MessageId)
	assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
	assert.Equal(t, "tenant-a", p.msg.Headers["tenant_id"])
	assert.Equal(t, at, p.msg.Timestamp)

	got, err := order.DecodeChange(p.msg.Body)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestNotify_PublishError(t *testing.T) {
	ch := &mockChannel{}
	n, err := New(ch, "order.events")
	require.NoError(t, err)
	ch.publishErr = amqp.ErrClosed

	err = n.Notify(context.Background(), order.StatusChange{Kind: order.KindConfirmed})
	require.ErrorIs(t, err, amqp.ErrClosed)
}

// Package notify fans order status changes out to a RabbitMQ exchange.
package notify

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/delivery-admin/internal/domain/order"
)

// Channel is the subset of *amqp.Channel the Notifier uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Notifier publishes one persistent message per order status change to a
// fanout exchange. Message id is the event id, so consumers can deduplicate
// redeliveries after a resumed dispatch.
type Notifier struct {
	exchange string

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
	ch Channel
}

// New declares exchange on ch and returns a Notifier publishing to it.
func New(ch Channel, exchange string) (*Notifier, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}
	return &Notifier{exchange: exchange, ch: ch}, nil
}

// Notify publishes c. It is an order.StatusChange handler.
func (n *Notifier) Notify(ctx context.Context, c order.StatusChange) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    c.EventID,
		Timestamp:    c.At,
		Type:         string(c.Kind),
		Headers: amqp.Table{
			"tenant_id": c.TenantID,
			"order_id":  c.OrderID,
		},
		Body: c.JSON(),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ch.PublishWithContext(ctx, n.exchange, string(c.Kind), false, false, msg); err != nil {
		return errors.Wrapf(err, "publish %s", c.Kind)
	}
	return nil
}

// Conn is an open broker connection with the channel a Notifier publishes on.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker at url and opens a channel.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Channel returns the connection's channel.
func (c *Conn) Channel() *amqp.Channel { return c.ch }

// Check reports an error when the connection is closed.
func (c *Conn) Check(context.Context) error {
	if c.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (c *Conn) Close() error {
	chErr := c.ch.Close()
	if err := c.conn.Close(); err != nil {
		return errors.Wrap(err, "close connection")
	}
	if chErr != nil {
		return errors.Wrap(chErr, "close channel")
	}
	return nil
}

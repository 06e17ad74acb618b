// Package events publishes order lifecycle events to RabbitMQ. Publishing is
// best-effort by contract: the order service logs failures and continues.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/freshcart-io/freshcart/internal/domain/order"
)

// envelope is the wire format for every published event.
type envelope struct {
	Event      string    `json:"event"`
	OrderID    string    `json:"orderId"`
	Status     string    `json:"status,omitempty"`
	PrevStatus string    `json:"prevStatus,omitempty"`
	Total      string    `json:"total,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

var _ order.EventPublisher = (*AMQPPublisher)(nil)

// AMQPPublisher emits order events to a single durable queue.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	lg    *zap.Logger
}

// Dial connects to the broker and declares the event queue.
func Dial(url, queue string, lg *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare queue %q", queue)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: queue, lg: lg}, nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() {
	if err := p.ch.Close(); err != nil {
		p.lg.Warn("close amqp channel", zap.Error(err))
	}
	if err := p.conn.Close(); err != nil {
		p.lg.Warn("close amqp connection", zap.Error(err))
	}
}

// OrderCreated publishes an order.created event.
func (p *AMQPPublisher) OrderCreated(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, envelope{
		Event:   "order.created",
		OrderID: o.ID,
		Status:  string(o.Status),
		Total:   o.Total.String(),
	})
}

// OrderStatusChanged publishes an order.status_changed event.
func (p *AMQPPublisher) OrderStatusChanged(ctx context.Context, o *order.Order, prev order.Status) error {
	return p.publish(ctx, envelope{
		Event:      "order.status_changed",
		OrderID:    o.ID,
		Status:     string(o.Status),
		PrevStatus: string(prev),
	})
}

// OrderDeleted publishes an order.deleted event.
func (p *AMQPPublisher) OrderDeleted(ctx context.Context, orderID string) error {
	return p.publish(ctx, envelope{
		Event:   "order.deleted",
		OrderID: orderID,
	})
}

func (p *AMQPPublisher) publish(ctx context.Context, env envelope) error {
	env.OccurredAt = time.Now().UTC()

	body, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", env.Event)
	}
	return nil
}

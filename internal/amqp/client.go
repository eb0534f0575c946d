package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	applog "painel/internal/log"
)

const (
	dialTimeout    = 10 * time.Second
	publishTimeout = 5 * time.Second

	// MessageType tags record change publications.
	MessageType = "record.changed"
	appID       = "painel"
)

// ErrDeliveriesClosed is returned by ConsumeRecordChanges when the broker
// closes the delivery channel.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Client publishes and consumes record change notifications on a direct
// exchange bound to a single durable queue. The queue name is the routing key.
type Client struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string
	logger   *applog.Logger
}

func NewClient(url, exchange, queue string) (*Client, error) {
	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Dial:       amqp091.DefaultDial(dialTimeout),
		Properties: amqp091.Table{"connection_name": appID},
	})
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Client{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		queue:    queue,
		logger:   applog.FromContext(context.Background()).WithComponent(applog.ComponentAMQP),
	}
	if err := c.declare(); err != nil {
		c.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	return c, nil
}

// declare creates the durable exchange and queue and binds them.
func (c *Client) declare() error {
	if err := c.channel.ExchangeDeclare(c.exchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange %q: %w", c.exchange, err)
	}
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue %q: %w", c.queue, err)
	}
	if err := c.channel.QueueBind(c.queue, c.queue, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind %q to %q: %w", c.queue, c.exchange, err)
	}
	return nil
}

// IsOpen reports whether the broker connection is still up.
func (c *Client) IsOpen() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishRecordChanged publishes a persistent change notification.
func (c *Client) PublishRecordChanged(ctx context.Context, date, operation string) error {
	msg := NewRecordChangedMessage(date, operation)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(ctx, c.exchange, c.queue, false, false, amqp091.Publishing{
		MessageId:    uuid.NewString(),
		Type:         MessageType,
		AppId:        appID,
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s %s: %w", operation, date, err)
	}

	c.logger.DebugContext(ctx, "Published record change",
		applog.FieldRecordDate, date,
		applog.FieldOperation, operation,
		"exchange", c.exchange)
	return nil
}

// ConsumeRecordChanges delivers change messages to handler one at a time
// until ctx ends. Malformed messages are dropped; handler errors requeue the
// delivery.
func (c *Client) ConsumeRecordChanges(ctx context.Context, handler func(context.Context, *RecordChangedMessage) error) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := c.channel.Consume(c.queue, appID+"-audit", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Consuming record changes", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping record change consumer", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.dispatch(ctx, d, handler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *RecordChangedMessage) error) {
	msg, err := RecordChangedMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping malformed record change", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Record change handler failed, requeueing",
			applog.FieldRecordDate, msg.Date,
			applog.FieldOperation, msg.Operation,
			"redelivered", d.Redelivered,
			"error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close shuts the channel and the connection.
func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

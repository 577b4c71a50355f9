// Package amqp carries outbound mail over a durable RabbitMQ queue.
// The HTTP server publishes; the worker process consumes and hands each
// message to an SMTP sender.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/artem13815/accounts/pkg/mail"
)

type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	log     *zap.Logger
}

func NewClient(url, queueName string, log *zap.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Idempotent: creates the queue if missing, no-op otherwise.
	// Durable so queued mail survives a broker restart.
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queueName, err)
	}

	return &Client{conn: conn, channel: ch, queue: q, log: log}, nil
}

// Send publishes the message onto the mail queue, satisfying mail.Sender.
func (c *Client) Send(ctx context.Context, msg mail.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}
	err = c.channel.PublishWithContext(ctx, "", c.queue.Name, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish mail message: %w", err)
	}
	c.log.Debug("mail enqueued", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// Consume drains the queue, calling handler for each message until ctx is
// cancelled. Failed deliveries are nacked back onto the queue.
func (c *Client) Consume(ctx context.Context, handler func(context.Context, mail.Message) error) error {
	deliveries, err := c.channel.Consume(c.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			var msg mail.Message
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				c.log.Error("undecodable mail message dropped", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				c.log.Error("mail delivery failed, requeueing",
					zap.String("to", msg.To), zap.Error(err))
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Conn exposes the underlying connection for health checks.
func (c *Client) Conn() *amqp.Connection { return c.conn }

func (c *Client) Close() error {
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}

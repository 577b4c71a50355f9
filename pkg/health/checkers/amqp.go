package checkers

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQPChecker struct {
	conn *amqp.Connection
}

func NewAMQPChecker(conn *amqp.Connection) *AMQPChecker {
	return &AMQPChecker{conn: conn}
}

func (c *AMQPChecker) Name() string { return "amqp" }

func (c *AMQPChecker) Check(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

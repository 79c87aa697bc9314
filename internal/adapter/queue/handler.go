package queue

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes a single delivery. It should be idempotent.
// Return nil => ACK; return error => NACK (requeue unless the error is ErrPoison).
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}

// ErrPoison marks a delivery that can never succeed, such as an undecodable
// body. The router drops it instead of requeueing forever.
var ErrPoison = errors.New("poison message")

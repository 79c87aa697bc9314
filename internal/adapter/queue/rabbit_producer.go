package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errNacked = errors.New("broker nacked publish")

// RabbitProducer publishes outbox records to the side-effect exchange and
// waits for the broker confirm, so the relay only marks a record sent once
// RabbitMQ owns it.
type RabbitProducer struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

// NewRabbitProducer declares the topology and enables publisher confirms.
func NewRabbitProducer(ch *amqp.Channel, exchange string) (*RabbitProducer, error) {
	if err := DeclareTopology(ch, exchange); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return &RabbitProducer{ch: ch, exchange: exchange}, nil
}

// Publish sends payload with the channel name as routing key.
func (p *RabbitProducer) Publish(ctx context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.exchange,
		channel, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // survive broker restarts
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", channel, err)
	}
	if !ok {
		return fmt.Errorf("publish %s: %w", channel, errNacked)
	}
	return nil
}

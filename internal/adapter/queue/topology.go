package queue

import (
	"fmt"

	"github.com/aq2208/gcheckout-api/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names per side-effect channel. The channel name is the routing key.
const (
	LoyaltyQueue  = "checkout.loyalty.q"
	ReferralQueue = "checkout.referral.q"
)

var bindings = map[string]string{
	LoyaltyQueue:  usecase.ChannelLoyaltyAward,
	ReferralQueue: usecase.ChannelReferralComplete,
}

// DeclareTopology sets up the exchange, the queues and their bindings.
// Safe to call from both producer and consumer; declarations are idempotent.
func DeclareTopology(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for queueName, routingKey := range bindings {
		q, err := ch.QueueDeclare(
			queueName,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queueName, err)
		}
		if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", queueName, err)
		}
	}
	return nil
}

package destination

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// AMQPChannel is the subset of *amqp.Channel used here.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes persistent messages to an exchange.
type AMQP struct {
	ch       AMQPChannel
	exchange string
	key      string
	timeout  time.Duration
}

func NewAMQP(ch AMQPChannel, exchange, key string, timeout time.Duration) *AMQP {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &AMQP{ch: ch, exchange: exchange, key: key, timeout: timeout}
}

func (a *AMQP) Attempt(ctx context.Context, _ string, payload domain.Payload) domain.DestinationResult {
	body, err := encode(payload)
	if err != nil {
		return domain.Failure(err.Error())
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err = a.ch.PublishWithContext(ctxTimeout, a.exchange, a.key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    payload.ID.String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return failuref("amqp publish: %v", err)
	}
	return domain.Success("published to " + a.exchange + "/" + a.key)
}

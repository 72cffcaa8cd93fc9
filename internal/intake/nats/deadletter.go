package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// Publisher is the subset of jetstream.JetStream used for dead letters.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// DeadLetter is the message published for a request the worker gave up on.
type DeadLetter struct {
	ID                string    `json:"id"`
	PayloadCode       string    `json:"payload_code"`
	PayloadUniqueCode string    `json:"payload_unique_code,omitempty"`
	ScheduledAt       string    `json:"scheduled_at"`
	Attempts          int       `json:"attempts"`
	Reason            string    `json:"reason"`
	DeadLetteredAt    time.Time `json:"dead_lettered_at"`
}

type DeadLetterPublisher struct {
	js      Publisher
	subject string
	timeout time.Duration
}

func NewDeadLetterPublisher(js Publisher, subject string) *DeadLetterPublisher {
	return &DeadLetterPublisher{js: js, subject: subject, timeout: 5 * time.Second}
}

func (p *DeadLetterPublisher) DeadLetter(ctx context.Context, env domain.Envelope, reason string) error {
	data, err := json.Marshal(DeadLetter{
		ID:                env.Request.ID.String(),
		PayloadCode:       env.Request.PayloadCode,
		PayloadUniqueCode: env.Request.PayloadUniqueCode,
		ScheduledAt:       env.Request.ScheduledAt,
		Attempts:          env.Attempt,
		Reason:            reason,
		DeadLetteredAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if _, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID("dlq-"+env.Request.ID.String())); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}
	return nil
}

package destination

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// JetStreamPublisher is the subset of jetstream.JetStream used here.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATS publishes the payload to a JetStream subject. The request id is used
// as the message id so the stream discards duplicates inside its window.
type NATS struct {
	js      JetStreamPublisher
	subject string
}

func NewNATS(js JetStreamPublisher, subject string) *NATS {
	return &NATS{js: js, subject: subject}
}

func (n *NATS) Attempt(ctx context.Context, _ string, payload domain.Payload) domain.DestinationResult {
	body, err := encode(payload)
	if err != nil {
		return domain.Failure(err.Error())
	}

	ack, err := n.js.Publish(ctx, n.subject, body, jetstream.WithMsgID(payload.ID.String()))
	if err != nil {
		return failuref("nats publish: %v", err)
	}
	if ack == nil {
		return domain.Success("published to " + n.subject)
	}
	if ack.Duplicate {
		return domain.Success(fmt.Sprintf("already in %s (seq %d)", ack.Stream, ack.Sequence))
	}
	return domain.Success(fmt.Sprintf("published to %s (seq %d)", ack.Stream, ack.Sequence))
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryRequest is one unit of work handed to the worker by a producer.
// It is a value type: the queue holds copies and nothing mutates it after creation.
type DeliveryRequest struct {
	ID uuid.UUID

	PayloadCode       string
	PayloadUniqueCode string
	ScheduledAt       string // parsed when the outbound payload is built

	CreatedAt time.Time
}

func NewDeliveryRequest(payloadCode, payloadUniqueCode, scheduledAt string) DeliveryRequest {
	return DeliveryRequest{
		ID:                uuid.New(),
		PayloadCode:       payloadCode,
		PayloadUniqueCode: payloadUniqueCode,
		ScheduledAt:       scheduledAt,
		CreatedAt:         time.Now().UTC(),
	}
}

// Envelope wraps a request while it sits in the queue.
// Attempt counts attempts already completed for the request.
type Envelope struct {
	Request    DeliveryRequest
	Attempt    int
	EnqueuedAt time.Time
}

func NewEnvelope(req DeliveryRequest) Envelope {
	return Envelope{Request: req, EnqueuedAt: time.Now().UTC()}
}

// Next returns the copy that goes back to the tail after a failed attempt.
func (e Envelope) Next() Envelope {
	return Envelope{
		Request:    e.Request,
		Attempt:    e.Attempt + 1,
		EnqueuedAt: time.Now().UTC(),
	}
}

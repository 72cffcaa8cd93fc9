package domain

import (
	"time"

	"github.com/google/uuid"
)

type LedgerState string

const (
	LedgerStateSent   LedgerState = "sent"
	LedgerStateFailed LedgerState = "failed"
)

// LedgerRecord is one verdict written after an attempt.
type LedgerRecord struct {
	RequestID         uuid.UUID
	PayloadCode       string
	PayloadUniqueCode string
	ScheduledAt       string

	State   LedgerState
	Attempt int

	Statuses map[Category]Status
	Messages map[Category]string

	RecordedAt time.Time
}

func NewLedgerRecord(env Envelope, state LedgerState, outcome Outcome) LedgerRecord {
	return LedgerRecord{
		RequestID:         env.Request.ID,
		PayloadCode:       env.Request.PayloadCode,
		PayloadUniqueCode: env.Request.PayloadUniqueCode,
		ScheduledAt:       env.Request.ScheduledAt,
		State:             state,
		Attempt:           env.Attempt + 1,
		Statuses:          outcome.Statuses(),
		Messages:          outcome.Messages(),
		RecordedAt:        time.Now().UTC(),
	}
}

// Request rebuilds the request a record was written for.
func (r LedgerRecord) Request() DeliveryRequest {
	return DeliveryRequest{
		ID:                r.RequestID,
		PayloadCode:       r.PayloadCode,
		PayloadUniqueCode: r.PayloadUniqueCode,
		ScheduledAt:       r.ScheduledAt,
	}
}

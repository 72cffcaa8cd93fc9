package api

import (
	"time"

	"github.com/djlord-it/easy-relay/internal/domain"
)

type SubmitResponse struct {
	ID string `json:"id"`
}

// RecordResponse is one ledger record as seen by API clients.
type RecordResponse struct {
	State      string            `json:"state"`
	Attempt    int               `json:"attempt"`
	Statuses   map[string]string `json:"statuses"`
	Messages   map[string]string `json:"messages"`
	RecordedAt string            `json:"recorded_at"`
}

type RequestResponse struct {
	ID                string `json:"id"`
	PayloadCode       string `json:"payload_code"`
	PayloadUniqueCode string `json:"payload_unique_code"`
	ScheduledAt       string `json:"scheduled_at"`

	Latest       RecordResponse   `json:"latest"`
	TotalRecords int              `json:"total_records"`
	History      []RecordResponse `json:"history"`
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	QueueDepth int               `json:"queue_depth"`
	Parked     int               `json:"parked"`
	Components map[string]string `json:"components,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toRecordResponse(rec domain.LedgerRecord) RecordResponse {
	resp := RecordResponse{
		State:      string(rec.State),
		Attempt:    rec.Attempt,
		Statuses:   make(map[string]string, len(rec.Statuses)),
		Messages:   make(map[string]string, len(rec.Messages)),
		RecordedAt: formatTime(rec.RecordedAt),
	}
	for c, s := range rec.Statuses {
		resp.Statuses[string(c)] = string(s)
	}
	for c, m := range rec.Messages {
		resp.Messages[string(c)] = m
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

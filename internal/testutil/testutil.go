// Package testutil provides shared test helpers for easyrelay.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// ScheduledAt is a well-formed timestamp accepted by domain.BuildPayload.
const ScheduledAt = "2024-03-01T08:30:00Z"

// FakeClock provides deterministic time for components with a clock hook.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// TestContext returns a context with a 5-second timeout.
// The context is cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Request builds a deliverable request whose unique code is derived from code.
func Request(code string) domain.DeliveryRequest {
	return domain.NewDeliveryRequest(code, "U-"+code, ScheduledAt)
}

// Record builds a ledger record for a fresh request with one "primary"
// category in the given state.
func Record(state domain.LedgerState, attempt int, recordedAt time.Time) domain.LedgerRecord {
	status := domain.StatusFailed
	if state == domain.LedgerStateSent {
		status = domain.StatusSuccess
	}
	return domain.LedgerRecord{
		RequestID:         uuid.New(),
		PayloadCode:       "QR123",
		PayloadUniqueCode: "U-1",
		ScheduledAt:       ScheduledAt,
		State:             state,
		Attempt:           attempt,
		Statuses:          map[domain.Category]domain.Status{domain.CategoryPrimary: status},
		Messages:          map[domain.Category]string{domain.CategoryPrimary: string(status)},
		RecordedAt:        recordedAt,
	}
}

package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/testutil"
)

// mockStore returns configurable unsettled records.
type mockStore struct {
	mu      sync.Mutex
	records []domain.LedgerRecord
	err     error
}

func (s *mockStore) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	var result []domain.LedgerRecord
	for _, rec := range s.records {
		if rec.RecordedAt.Before(olderThan) {
			result = append(result, rec)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (s *mockStore) setRecords(records []domain.LedgerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

type resubmission struct {
	req      domain.DeliveryRequest
	attempts int
}

// mockSubmitter tracks resubmitted requests.
type mockSubmitter struct {
	mu      sync.Mutex
	subs    []resubmission
	tracked map[uuid.UUID]bool
	err     error
	onCall  func()
}

func (m *mockSubmitter) Resubmit(req domain.DeliveryRequest, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onCall != nil {
		m.onCall()
	}
	if m.err != nil {
		return m.err
	}
	m.subs = append(m.subs, resubmission{req, attempts})
	return nil
}

func (m *mockSubmitter) Tracked(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracked[id]
}

func (m *mockSubmitter) getSubs() []resubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]resubmission, len(m.subs))
	copy(result, m.subs)
	return result
}

type mockMetrics struct {
	mu      sync.Mutex
	updates []int
}

func (m *mockMetrics) UnsettledRequestsUpdate(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, count)
}

func failedRecord(attempt int, recordedAt time.Time) domain.LedgerRecord {
	return testutil.Record(domain.LedgerStateFailed, attempt, recordedAt)
}

func newTestReconciler(store Store, sub Submitter, now time.Time) *Reconciler {
	r := New(Config{
		Interval:  time.Hour, // Not used in direct runCycle call
		Threshold: 10 * time.Minute,
		BatchSize: 100,
	}, store, sub)
	r.clock = testutil.NewFakeClock(now).Now
	return r
}

func TestReconciler_ResubmitsUnsettled(t *testing.T) {
	now := time.Now().UTC()
	rec := failedRecord(3, now.Add(-15*time.Minute))

	store := &mockStore{}
	store.setRecords([]domain.LedgerRecord{rec})
	sub := &mockSubmitter{}

	newTestReconciler(store, sub, now).runCycle(context.Background())

	subs := sub.getSubs()
	if len(subs) != 1 {
		t.Fatalf("expected 1 resubmission, got %d", len(subs))
	}

	// The original request ID keeps ledger history in one place.
	if subs[0].req.ID != rec.RequestID {
		t.Errorf("resubmitted ID = %s, want %s", subs[0].req.ID, rec.RequestID)
	}
	if subs[0].req.PayloadUniqueCode != "U-1" || subs[0].req.ScheduledAt != rec.ScheduledAt {
		t.Errorf("request fields not preserved: %+v", subs[0].req)
	}
	if subs[0].attempts != 3 {
		t.Errorf("attempts = %d, want 3", subs[0].attempts)
	}
}

func TestReconciler_SkipsTrackedRequests(t *testing.T) {
	now := time.Now().UTC()
	queued := failedRecord(1, now.Add(-time.Hour))
	lost := failedRecord(1, now.Add(-time.Hour))

	store := &mockStore{}
	store.setRecords([]domain.LedgerRecord{queued, lost})
	sub := &mockSubmitter{tracked: map[uuid.UUID]bool{queued.RequestID: true}}

	newTestReconciler(store, sub, now).runCycle(context.Background())

	subs := sub.getSubs()
	if len(subs) != 1 || subs[0].req.ID != lost.RequestID {
		t.Fatalf("expected only the untracked request, got %+v", subs)
	}
}

func TestReconciler_SkipsExhaustedRequests(t *testing.T) {
	now := time.Now().UTC()
	exhausted := failedRecord(5, now.Add(-time.Hour))
	retryable := failedRecord(2, now.Add(-time.Hour))

	store := &mockStore{}
	store.setRecords([]domain.LedgerRecord{exhausted, retryable})
	sub := &mockSubmitter{}

	r := newTestReconciler(store, sub, now)
	r.config.MaxAttempts = 5
	r.runCycle(context.Background())

	subs := sub.getSubs()
	if len(subs) != 1 || subs[0].req.ID != retryable.RequestID {
		t.Fatalf("expected only the retryable request, got %+v", subs)
	}
}

func TestReconciler_DoesNotResubmitRecent(t *testing.T) {
	now := time.Now().UTC()
	store := &mockStore{}
	store.setRecords([]domain.LedgerRecord{failedRecord(1, now.Add(-5*time.Minute))})
	sub := &mockSubmitter{}
	metrics := &mockMetrics{}

	newTestReconciler(store, sub, now).WithMetrics(metrics).runCycle(context.Background())

	if n := len(sub.getSubs()); n != 0 {
		t.Errorf("expected 0 resubmissions for a recent failure, got %d", n)
	}
	if len(metrics.updates) != 1 || metrics.updates[0] != 0 {
		t.Errorf("unsettled updates = %v, want [0]", metrics.updates)
	}
}

func TestReconciler_BatchSizeRespected(t *testing.T) {
	now := time.Now().UTC()
	var records []domain.LedgerRecord
	for i := 0; i < 50; i++ {
		records = append(records, failedRecord(1, now.Add(-time.Hour)))
	}
	store := &mockStore{}
	store.setRecords(records)
	sub := &mockSubmitter{}

	r := newTestReconciler(store, sub, now)
	r.config.BatchSize = 10
	r.runCycle(context.Background())

	if n := len(sub.getSubs()); n != 10 {
		t.Errorf("expected 10 resubmissions (batch size), got %d", n)
	}
}

func TestReconciler_StoreErrorAbortsGracefully(t *testing.T) {
	store := &mockStore{err: errors.New("database connection failed")}
	sub := &mockSubmitter{}

	// Should not panic
	newTestReconciler(store, sub, time.Now()).runCycle(context.Background())

	if n := len(sub.getSubs()); n != 0 {
		t.Errorf("expected 0 resubmissions on store error, got %d", n)
	}
}

func TestReconciler_SubmitErrorContinues(t *testing.T) {
	now := time.Now().UTC()
	store := &mockStore{}
	store.setRecords([]domain.LedgerRecord{
		failedRecord(1, now.Add(-time.Hour)),
		failedRecord(1, now.Add(-time.Hour)),
	})

	calls := 0
	sub := &mockSubmitter{err: errors.New("worker: stopped")}
	sub.onCall = func() { calls++ }

	newTestReconciler(store, sub, now).runCycle(context.Background())

	if calls != 2 {
		t.Errorf("expected both records attempted despite errors, got %d calls", calls)
	}
}

func TestReconciler_ContextCancellation(t *testing.T) {
	now := time.Now().UTC()
	var records []domain.LedgerRecord
	for i := 0; i < 10; i++ {
		records = append(records, failedRecord(1, now.Add(-time.Hour)))
	}
	store := &mockStore{}
	store.setRecords(records)

	ctx, cancel := context.WithCancel(context.Background())
	sub := &mockSubmitter{}
	sub.onCall = func() {
		if len(sub.subs) == 2 {
			cancel()
		}
	}

	newTestReconciler(store, sub, now).runCycle(ctx)

	if n := len(sub.getSubs()); n != 3 {
		t.Errorf("expected cycle to stop after cancellation, got %d resubmissions", n)
	}
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	store := &mockStore{}
	r := New(Config{Interval: 10 * time.Millisecond, Threshold: time.Minute, BatchSize: 10}, store, &mockSubmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReconciler_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Interval != 5*time.Minute {
		t.Errorf("expected default interval 5m, got %s", cfg.Interval)
	}
	if cfg.Threshold != 10*time.Minute {
		t.Errorf("expected default threshold 10m, got %s", cfg.Threshold)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", cfg.BatchSize)
	}
	if cfg.MaxAttempts != 0 {
		t.Errorf("expected unbounded attempts by default, got %d", cfg.MaxAttempts)
	}
}

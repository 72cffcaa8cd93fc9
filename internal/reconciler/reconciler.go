// Package reconciler re-submits unsettled requests found in the ledger.
//
// A request is unsettled when its latest ledger verdict is failed and the
// worker no longer holds it, which happens after a restart since the queue
// lives in memory. The reconciler periodically lists unsettled requests
// older than a threshold and re-submits those the worker is not tracking,
// keeping their attempt count. Requests whose attempts are exhausted were
// dead-lettered and are left alone.
package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// Store defines the interface for fetching unsettled requests.
type Store interface {
	ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerRecord, error)
}

// Submitter is the worker side of reconciliation.
type Submitter interface {
	Resubmit(req domain.DeliveryRequest, attempts int) error
	Tracked(id uuid.UUID) bool
}

// MetricsSink defines the interface for recording reconciler metrics.
type MetricsSink interface {
	UnsettledRequestsUpdate(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which a failed verdict is considered unsettled.
	// Default: 10 minutes.
	Threshold time.Duration

	// BatchSize is the maximum number of requests to process per cycle.
	// Default: 100.
	BatchSize int

	// MaxAttempts mirrors the worker's retry policy. 0 means unbounded.
	MaxAttempts int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 10 * time.Minute,
		BatchSize: 100,
	}
}

// Reconciler detects unsettled requests and re-submits them.
type Reconciler struct {
	config    Config
	store     Store
	submitter Submitter
	metrics   MetricsSink // optional, nil = disabled
	logger    *zap.Logger
	clock     func() time.Time
}

// New creates a new Reconciler.
func New(config Config, store Store, submitter Submitter) *Reconciler {
	return &Reconciler{
		config:    config,
		store:     store,
		submitter: submitter,
		logger:    zap.NewNop(),
		clock:     time.Now,
	}
}

func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

func (r *Reconciler) WithLogger(logger *zap.Logger) *Reconciler {
	if logger != nil {
		r.logger = logger.Named("reconciler")
	}
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("started",
		zap.Duration("interval", r.config.Interval),
		zap.Duration("threshold", r.config.Threshold),
		zap.Int("batch", r.config.BatchSize),
	)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	records, err := r.store.ListUnsettled(ctx, threshold, r.config.BatchSize)
	if err != nil {
		// Store error: log and abort cycle. Will retry next interval.
		r.logger.Error("failed to list unsettled requests", zap.Error(err))
		return
	}

	if r.metrics != nil {
		r.metrics.UnsettledRequestsUpdate(len(records))
	}
	if len(records) == 0 {
		return
	}

	resubmitted, skipped, failed := 0, 0, 0

	for _, rec := range records {
		// Check context before each submit to allow graceful shutdown
		if ctx.Err() != nil {
			r.logger.Info("cycle interrupted",
				zap.Int("processed", resubmitted+skipped+failed),
				zap.Int("found", len(records)),
			)
			return
		}

		if r.exhausted(rec) || r.submitter.Tracked(rec.RequestID) {
			skipped++
			continue
		}

		if err := r.submitter.Resubmit(rec.Request(), rec.Attempt); err != nil {
			// Worker stopping: log and continue, next cycle picks it up.
			r.logger.Warn("failed to resubmit",
				zap.String("request_id", rec.RequestID.String()),
				zap.Error(err),
			)
			failed++
			continue
		}

		r.logger.Info("resubmitted",
			zap.String("request_id", rec.RequestID.String()),
			zap.Int("attempts", rec.Attempt),
			zap.Duration("age", now.Sub(rec.RecordedAt).Round(time.Second)),
		)
		resubmitted++
	}

	r.logger.Info("cycle complete",
		zap.Int("resubmitted", resubmitted),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
}

func (r *Reconciler) exhausted(rec domain.LedgerRecord) bool {
	return r.config.MaxAttempts > 0 && rec.Attempt >= r.config.MaxAttempts
}

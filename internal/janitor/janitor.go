// Package janitor prunes old ledger entries on a cron schedule.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes ledger requests last recorded before the cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Schedule interface {
	Next(after time.Time) time.Time
}

// MetricsSink defines the interface for recording janitor metrics.
type MetricsSink interface {
	LedgerPruned(count int64)
}

type Config struct {
	// Retention is how long a request stays in the ledger after its last verdict.
	Retention time.Duration

	// Timeout bounds a single prune run.
	Timeout time.Duration
}

type Janitor struct {
	config   Config
	pruner   Pruner
	schedule Schedule
	metrics  MetricsSink // optional, nil = disabled
	logger   *zap.Logger
	clock    func() time.Time
}

func New(config Config, pruner Pruner, schedule Schedule) *Janitor {
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	return &Janitor{
		config:   config,
		pruner:   pruner,
		schedule: schedule,
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
}

func (j *Janitor) WithMetrics(sink MetricsSink) *Janitor {
	j.metrics = sink
	return j
}

func (j *Janitor) WithLogger(logger *zap.Logger) *Janitor {
	if logger != nil {
		j.logger = logger.Named("janitor")
	}
	return j
}

// Run waits for each scheduled time and prunes. It blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("started", zap.Duration("retention", j.config.Retention))

	for {
		now := j.clock()
		next := j.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("stopped")
			return
		case <-timer.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	cutoff := j.clock().UTC().Add(-j.config.Retention)

	pruneCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	n, err := j.pruner.Prune(pruneCtx, cutoff)
	if err != nil {
		j.logger.Error("prune failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return
	}

	if j.metrics != nil {
		j.metrics.LedgerPruned(n)
	}
	j.logger.Info("pruned ledger", zap.Int64("requests", n), zap.Time("cutoff", cutoff))
}

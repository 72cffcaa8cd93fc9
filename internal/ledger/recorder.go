package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/domain"
)

const DefaultWriteTimeout = 5 * time.Second

// MetricsSink defines the interface for recording ledger metrics.
type MetricsSink interface {
	LedgerWrite(state string, err error)
}

// Recorder adapts a Store to the worker's ledger contract. Write errors are
// logged and counted, never returned: a failed ledger write must not change
// the retry decision.
type Recorder struct {
	store   Store
	timeout time.Duration
	metrics MetricsSink // optional, nil = disabled
	logger  *zap.Logger
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store:   store,
		timeout: DefaultWriteTimeout,
		logger:  zap.NewNop(),
	}
}

func (r *Recorder) WithTimeout(d time.Duration) *Recorder {
	if d > 0 {
		r.timeout = d
	}
	return r
}

func (r *Recorder) WithMetrics(sink MetricsSink) *Recorder {
	r.metrics = sink
	return r
}

func (r *Recorder) WithLogger(logger *zap.Logger) *Recorder {
	if logger != nil {
		r.logger = logger.Named("ledger")
	}
	return r
}

func (r *Recorder) RecordSuccess(ctx context.Context, rec domain.LedgerRecord) {
	rec.State = domain.LedgerStateSent
	r.write(ctx, rec)
}

func (r *Recorder) RecordFailure(ctx context.Context, rec domain.LedgerRecord) {
	rec.State = domain.LedgerStateFailed
	r.write(ctx, rec)
}

func (r *Recorder) write(ctx context.Context, rec domain.LedgerRecord) {
	// The write outlives a cancelled worker context so shutdown still records verdicts.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	err := r.store.Append(writeCtx, rec)
	if r.metrics != nil {
		r.metrics.LedgerWrite(string(rec.State), err)
	}
	if err != nil {
		r.logger.Error("ledger write failed",
			zap.String("request_id", rec.RequestID.String()),
			zap.String("state", string(rec.State)),
			zap.Int("attempt", rec.Attempt),
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{
		zap.String("request_id", rec.RequestID.String()),
		zap.String("state", string(rec.State)),
		zap.Int("attempt", rec.Attempt),
	}
	for _, c := range domain.SortedCategories(rec.Statuses) {
		fields = append(fields, zap.String(string(c), string(rec.Statuses[c])))
	}
	r.logger.Info("ledger recorded", fields...)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/retry"
	"github.com/djlord-it/easy-relay/internal/transport/channel"
)

var (
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("worker: stopped")

	ErrAlreadyStarted = errors.New("worker: already started")
)

const (
	ReasonExhausted = "attempts exhausted"
	ReasonShutdown  = "abandoned at shutdown"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, endpoint string, payload domain.Payload) domain.Outcome
	Categories() []domain.Category
	Accepts(outcome domain.Outcome) bool
}

// Ledger records verdicts. Implementations handle their own errors.
type Ledger interface {
	RecordSuccess(ctx context.Context, rec domain.LedgerRecord)
	RecordFailure(ctx context.Context, rec domain.LedgerRecord)
}

// DeadLetterSink receives requests the worker gives up on.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, env domain.Envelope, reason string) error
}

type AnalyticsSink interface {
	Record(ctx context.Context, outcome domain.Outcome, at time.Time)
}

// MetricsSink defines the interface for recording worker metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DispatchCompleted(duration time.Duration, anySucceeded bool)
	DeliveryOutcome(outcome string)
	RetryScheduled(delay time.Duration)
	WorkerFault()
	InFlightIncr()
	InFlightDecr()
	QueueDepthUpdate(ready, parked int)
	SubmitRejected()
}

// Worker consumes the queue one envelope at a time. Failed attempts go
// back to the tail until the retry policy gives up.
type Worker struct {
	queue      *channel.Queue
	dispatcher Dispatcher
	ledger     Ledger
	endpoint   string
	routing    domain.Routing
	policy     retry.Policy

	deadLetter DeadLetterSink // optional, nil = log only
	analytics  AnalyticsSink  // optional, nil = disabled
	metrics    MetricsSink    // optional, nil = disabled
	logger     *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

func New(queue *channel.Queue, dispatcher Dispatcher, ledger Ledger, endpoint string) *Worker {
	return &Worker{
		queue:      queue,
		dispatcher: dispatcher,
		ledger:     ledger,
		endpoint:   endpoint,
		routing:    domain.DefaultRouting(),
		policy:     retry.Unbounded(),
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
}

func (w *Worker) WithRouting(r domain.Routing) *Worker {
	w.routing = r
	return w
}

func (w *Worker) WithPolicy(p retry.Policy) *Worker {
	w.policy = p
	return w
}

func (w *Worker) WithDeadLetter(sink DeadLetterSink) *Worker {
	w.deadLetter = sink
	return w
}

func (w *Worker) WithAnalytics(sink AnalyticsSink) *Worker {
	w.analytics = sink
	return w
}

// WithMetrics attaches a metrics sink to the worker.
func (w *Worker) WithMetrics(sink MetricsSink) *Worker {
	w.metrics = sink
	return w
}

func (w *Worker) WithLogger(logger *zap.Logger) *Worker {
	if logger != nil {
		w.logger = logger.Named("worker")
	}
	return w
}

// Submit enqueues a new request at the tail. It never blocks.
func (w *Worker) Submit(req domain.DeliveryRequest) error {
	return w.push(domain.NewEnvelope(req))
}

// Resubmit enqueues a request that already has completed attempts,
// keeping its attempt count for the retry policy.
func (w *Worker) Resubmit(req domain.DeliveryRequest, attempts int) error {
	env := domain.NewEnvelope(req)
	env.Attempt = attempts
	return w.push(env)
}

func (w *Worker) push(env domain.Envelope) error {
	if err := w.queue.Push(env); err != nil {
		if w.metrics != nil {
			w.metrics.SubmitRejected()
		}
		if errors.Is(err, channel.ErrQueueComplete) || errors.Is(err, channel.ErrQueueAbandoned) {
			return ErrStopped
		}
		return err
	}
	w.reportDepth()
	return nil
}

// Tracked reports whether a request is queued, parked or being dispatched.
func (w *Worker) Tracked(id uuid.UUID) bool {
	return w.queue.Contains(id)
}

// QueueDepth returns the ready and parked counts.
func (w *Worker) QueueDepth() (ready, parked int) {
	return w.queue.Len(), w.queue.Parked()
}

// Stopped reports whether Stop has been called.
func (w *Worker) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Start launches the consumer. Cancelling ctx ends consumption once the
// ready items are gone: later submissions are rejected and parked retries are
// abandoned to the dead letter sink. Stop is the graceful path.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	if w.stopped {
		return ErrStopped
	}
	w.started = true

	go w.run(ctx)
	return nil
}

// Stop rejects new submissions and waits for queued and parked work to
// drain. If ctx expires first, whatever is left is abandoned to the dead
// letter sink. The attempt in flight is never cancelled and Stop returns
// only after the consumer has exited.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.Wait()
		return nil
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	w.queue.Complete()
	w.logger.Info("stopping, draining queue",
		zap.Int("ready", w.queue.Len()),
		zap.Int("parked", w.queue.Parked()),
	)

	if !started {
		w.abandon(w.queue.Abandon())
		close(w.done)
		return nil
	}

	select {
	case <-w.done:
		if left := w.queue.Abandon(); len(left) > 0 {
			w.logger.Warn("consumer exited early, abandoning remaining requests", zap.Int("count", len(left)))
			w.abandon(left)
			return nil
		}
		w.logger.Info("drain complete")
		return nil
	case <-ctx.Done():
	}

	left := w.queue.Abandon()
	w.logger.Warn("drain timeout, abandoning remaining requests", zap.Int("count", len(left)))
	w.abandon(left)
	<-w.done

	return fmt.Errorf("worker: drain incomplete, abandoned %d queued requests: %w", len(left), ctx.Err())
}

// Wait blocks until the consumer has exited.
func (w *Worker) Wait() {
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		env, err := w.queue.Dequeue(ctx)
		if err != nil {
			switch {
			case errors.Is(err, channel.ErrDrained), errors.Is(err, channel.ErrQueueAbandoned):
			default:
				w.logger.Warn("consumer cancelled", zap.Error(err))
				w.halt()
			}
			return
		}
		w.reportDepth()
		w.process(ctx, env)
	}
}

// halt closes the worker after its consumer context ends so nothing
// submitted afterwards is stranded.
func (w *Worker) halt() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.queue.Complete()
	if left := w.queue.Abandon(); len(left) > 0 {
		w.logger.Warn("abandoning remaining requests", zap.Int("count", len(left)))
		w.abandon(left)
	}
}

func (w *Worker) process(ctx context.Context, env domain.Envelope) {
	// The attempt outlives cancellation of the consumer context.
	ctx = context.WithoutCancel(ctx)

	if w.metrics != nil {
		w.metrics.InFlightIncr()
		defer w.metrics.InFlightDecr()
	}
	// Released after any requeue so Tracked has no gap.
	defer w.queue.Done(env.Request.ID)

	start := time.Now()
	outcome, fault := w.attempt(ctx, env)
	elapsed := time.Since(start)

	if w.metrics != nil {
		w.metrics.DispatchCompleted(elapsed, outcome.AnySucceeded())
	}
	if w.analytics != nil {
		w.analytics.Record(ctx, outcome, start)
	}

	log := w.logger.With(
		zap.String("request_id", env.Request.ID.String()),
		zap.Int("attempt", env.Attempt+1),
	)

	if fault != nil {
		if w.metrics != nil {
			w.metrics.WorkerFault()
		}
		log.Error("attempt faulted", zap.Error(fault))
	} else if w.dispatcher.Accepts(outcome) {
		w.ledger.RecordSuccess(ctx, domain.NewLedgerRecord(env, domain.LedgerStateSent, outcome))
		if w.metrics != nil {
			w.metrics.DeliveryOutcome(outcomeSuccess)
		}
		log.Info("delivered", zap.Duration("duration", elapsed))
		return
	}

	w.ledger.RecordFailure(ctx, domain.NewLedgerRecord(env, domain.LedgerStateFailed, outcome))
	w.retry(ctx, env, log)
}

// attempt builds the payload and dispatches it. Errors and panics become
// a fault outcome carrying the fault description in every category.
func (w *Worker) attempt(ctx context.Context, env domain.Envelope) (outcome domain.Outcome, fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("panic: %v", r)
			outcome = domain.FaultOutcome(w.dispatcher.Categories(), fmt.Sprint(r))
		}
	}()

	payload, err := domain.BuildPayload(env.Request, w.routing)
	if err != nil {
		return domain.FaultOutcome(w.dispatcher.Categories(), err.Error()), err
	}
	return w.dispatcher.Dispatch(ctx, w.endpoint, payload), nil
}

func (w *Worker) retry(ctx context.Context, env domain.Envelope, log *zap.Logger) {
	attempts := env.Attempt + 1
	next := env.Next()
	if !w.policy.ShouldRetry(attempts) {
		log.Warn("retry policy exhausted", zap.String("policy", w.policy.String()))
		w.sendDeadLetter(ctx, next, ReasonExhausted)
		if w.metrics != nil {
			w.metrics.DeliveryOutcome(outcomeDeadLettered)
		}
		return
	}

	delay := w.policy.NextDelay(attempts)
	if err := w.queue.RequeueAfter(next, delay); err != nil {
		w.abandon([]domain.Envelope{next})
		return
	}

	if w.metrics != nil {
		w.metrics.RetryScheduled(delay)
		w.metrics.DeliveryOutcome(outcomeRequeued)
	}
	w.reportDepth()
	log.Info("requeued", zap.Duration("delay", delay))
}

func (w *Worker) abandon(envs []domain.Envelope) {
	for _, env := range envs {
		w.logger.Warn("request abandoned",
			zap.String("request_id", env.Request.ID.String()),
			zap.Int("attempts", env.Attempt),
		)
		w.sendDeadLetter(context.Background(), env, ReasonShutdown)
		if w.metrics != nil {
			w.metrics.DeliveryOutcome(outcomeAbandoned)
		}
	}
}

func (w *Worker) sendDeadLetter(ctx context.Context, env domain.Envelope, reason string) {
	if w.deadLetter == nil {
		return
	}
	if err := w.deadLetter.DeadLetter(ctx, env, reason); err != nil {
		w.logger.Error("dead letter failed",
			zap.String("request_id", env.Request.ID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func (w *Worker) reportDepth() {
	if w.metrics != nil {
		w.metrics.QueueDepthUpdate(w.queue.Len(), w.queue.Parked())
	}
}

// Outcome labels, matching metrics.Outcome*.
const (
	outcomeSuccess      = "success"
	outcomeRequeued     = "requeued"
	outcomeDeadLettered = "dead_lettered"
	outcomeAbandoned    = "abandoned"
)

package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Worker metrics
	DispatchCompleted(duration time.Duration, anySucceeded bool)
	DestinationAttempt(destination, category string, succeeded bool, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryScheduled(delay time.Duration)
	WorkerFault()
	InFlightIncr()
	InFlightDecr()

	// Queue metrics
	QueueDepthUpdate(ready, parked int)
	SubmitRejected()

	// Ledger metrics
	LedgerWrite(state string, err error)
	UnsettledRequestsUpdate(count int)
	LedgerPruned(count int64)

	// Circuit breaker metrics
	BreakerStateChange(destination, state string)
}

// Outcome constants for DeliveryOutcome metric.
const (
	OutcomeSuccess      = "success"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeAbandoned    = "abandoned"
)

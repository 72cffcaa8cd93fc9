package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// Verify that calling all methods on NoopSink does not panic.
	s := NewNoopSink()

	s.DispatchCompleted(100*time.Millisecond, true)
	s.DestinationAttempt("erp", "primary", false, 20*time.Millisecond)
	s.DeliveryOutcome(OutcomeSuccess)
	s.DeliveryOutcome(OutcomeRequeued)
	s.DeliveryOutcome(OutcomeDeadLettered)
	s.DeliveryOutcome(OutcomeAbandoned)
	s.RetryScheduled(time.Second)
	s.WorkerFault()
	s.InFlightIncr()
	s.InFlightDecr()

	s.QueueDepthUpdate(10, 2)
	s.SubmitRejected()

	s.LedgerWrite("sent", nil)
	s.LedgerWrite("failed", errors.New("db down"))
	s.UnsettledRequestsUpdate(3)
	s.LedgerPruned(42)

	s.BreakerStateChange("erp", "open")
}

// Verify NoopSink implements Sink interface.
var _ Sink = (*NoopSink)(nil)

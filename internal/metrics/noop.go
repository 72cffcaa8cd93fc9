package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) DispatchCompleted(duration time.Duration, anySucceeded bool)               {}
func (n *NoopSink) DestinationAttempt(dest, category string, ok bool, duration time.Duration) {}
func (n *NoopSink) DeliveryOutcome(outcome string)                                            {}
func (n *NoopSink) RetryScheduled(delay time.Duration)                                        {}
func (n *NoopSink) WorkerFault()                                                              {}
func (n *NoopSink) InFlightIncr()                                                             {}
func (n *NoopSink) InFlightDecr()                                                             {}
func (n *NoopSink) QueueDepthUpdate(ready, parked int)                                        {}
func (n *NoopSink) SubmitRejected()                                                           {}
func (n *NoopSink) LedgerWrite(state string, err error)                                       {}
func (n *NoopSink) UnsettledRequestsUpdate(count int)                                         {}
func (n *NoopSink) LedgerPruned(count int64)                                                  {}
func (n *NoopSink) BreakerStateChange(destination, state string)                              {}

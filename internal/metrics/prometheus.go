package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	logger *zap.Logger

	// Worker metrics
	dispatchesTotal       *prometheus.CounterVec
	dispatchDuration      prometheus.Histogram
	destinationAttempts   *prometheus.CounterVec
	destinationDuration   *prometheus.HistogramVec
	deliveryOutcomesTotal *prometheus.CounterVec
	retryDelay            prometheus.Histogram
	faultsTotal           prometheus.Counter
	inFlight              prometheus.Gauge

	// Queue metrics
	queueReady          prometheus.Gauge
	queueParked         prometheus.Gauge
	submitRejectedTotal prometheus.Counter

	// Ledger metrics
	ledgerWritesTotal *prometheus.CounterVec
	unsettled         prometheus.Gauge
	prunedTotal       prometheus.Counter

	// Circuit breaker metrics
	breakerTransitions *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer, logger *zap.Logger) *PrometheusSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PrometheusSink{logger: logger.Named("metrics")}
	s.initWorkerMetrics(reg)
	s.initQueueMetrics(reg)
	s.initLedgerMetrics(reg)
	s.initBreakerMetrics(reg)
	return s
}

func (s *PrometheusSink) initWorkerMetrics(reg prometheus.Registerer) {
	s.dispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyrelay_worker_dispatches_total",
		Help: "Total number of dispatches, labelled by whether any category succeeded.",
	}, []string{"accepted"})
	s.dispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easyrelay_worker_dispatch_duration_seconds",
		Help:    "Duration of a full sequential dispatch across all destinations.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.destinationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyrelay_destination_attempts_total",
		Help: "Total number of destination attempts.",
	}, []string{"destination", "category", "result"})
	s.destinationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "easyrelay_destination_duration_seconds",
		Help:    "Destination attempt latency in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"destination"})
	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyrelay_worker_delivery_outcomes_total",
		Help: "Total number of per-attempt delivery outcomes.",
	}, []string{"outcome"})
	s.retryDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easyrelay_worker_retry_delay_seconds",
		Help:    "Backoff applied before a retry is re-queued.",
		Buckets: []float64{0, 0.1, 1, 5, 15, 60, 300, 900},
	})
	s.faultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyrelay_worker_faults_total",
		Help: "Total number of unexpected faults caught by the worker.",
	})
	s.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyrelay_worker_in_flight",
		Help: "Number of requests currently being dispatched.",
	})

	s.register(reg, s.dispatchesTotal, "easyrelay_worker_dispatches_total")
	s.register(reg, s.dispatchDuration, "easyrelay_worker_dispatch_duration_seconds")
	s.register(reg, s.destinationAttempts, "easyrelay_destination_attempts_total")
	s.register(reg, s.destinationDuration, "easyrelay_destination_duration_seconds")
	s.register(reg, s.deliveryOutcomesTotal, "easyrelay_worker_delivery_outcomes_total")
	s.register(reg, s.retryDelay, "easyrelay_worker_retry_delay_seconds")
	s.register(reg, s.faultsTotal, "easyrelay_worker_faults_total")
	s.register(reg, s.inFlight, "easyrelay_worker_in_flight")
}

func (s *PrometheusSink) initQueueMetrics(reg prometheus.Registerer) {
	s.queueReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyrelay_queue_ready",
		Help: "Number of requests waiting in the queue.",
	})
	s.queueParked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyrelay_queue_parked",
		Help: "Number of retries waiting for their backoff to elapse.",
	})
	s.submitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyrelay_queue_submit_rejected_total",
		Help: "Total number of submissions rejected after shutdown began.",
	})

	s.register(reg, s.queueReady, "easyrelay_queue_ready")
	s.register(reg, s.queueParked, "easyrelay_queue_parked")
	s.register(reg, s.submitRejectedTotal, "easyrelay_queue_submit_rejected_total")
}

func (s *PrometheusSink) initLedgerMetrics(reg prometheus.Registerer) {
	s.ledgerWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyrelay_ledger_writes_total",
		Help: "Total number of ledger writes by state and result.",
	}, []string{"state", "result"})
	s.unsettled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easyrelay_ledger_unsettled_requests",
		Help: "Requests whose latest ledger state is failed, as seen by the reconciler.",
	})
	s.prunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easyrelay_ledger_pruned_total",
		Help: "Total number of ledger requests removed by retention cleanup.",
	})

	s.register(reg, s.ledgerWritesTotal, "easyrelay_ledger_writes_total")
	s.register(reg, s.unsettled, "easyrelay_ledger_unsettled_requests")
	s.register(reg, s.prunedTotal, "easyrelay_ledger_pruned_total")
}

func (s *PrometheusSink) initBreakerMetrics(reg prometheus.Registerer) {
	s.breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easyrelay_circuit_breaker_transitions_total",
		Help: "Total number of circuit breaker state transitions.",
	}, []string{"destination", "state"})

	s.register(reg, s.breakerTransitions, "easyrelay_circuit_breaker_transitions_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("failed to register collector", zap.String("name", name), zap.Error(err))
	}
}

// Worker metrics implementation

func (s *PrometheusSink) DispatchCompleted(duration time.Duration, anySucceeded bool) {
	s.dispatchesTotal.WithLabelValues(strconv.FormatBool(anySucceeded)).Inc()
	s.dispatchDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DestinationAttempt(destination, category string, succeeded bool, duration time.Duration) {
	result := OutcomeSuccess
	if !succeeded {
		result = "failed"
	}
	s.destinationAttempts.WithLabelValues(destination, category, result).Inc()
	s.destinationDuration.WithLabelValues(destination).Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RetryScheduled(delay time.Duration) {
	s.retryDelay.Observe(delay.Seconds())
}

func (s *PrometheusSink) WorkerFault() {
	s.faultsTotal.Inc()
}

func (s *PrometheusSink) InFlightIncr() {
	s.inFlight.Inc()
}

func (s *PrometheusSink) InFlightDecr() {
	s.inFlight.Dec()
}

// Queue metrics implementation

func (s *PrometheusSink) QueueDepthUpdate(ready, parked int) {
	s.queueReady.Set(float64(ready))
	s.queueParked.Set(float64(parked))
}

func (s *PrometheusSink) SubmitRejected() {
	s.submitRejectedTotal.Inc()
}

// Ledger metrics implementation

func (s *PrometheusSink) LedgerWrite(state string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.ledgerWritesTotal.WithLabelValues(state, result).Inc()
}

func (s *PrometheusSink) UnsettledRequestsUpdate(count int) {
	s.unsettled.Set(float64(count))
}

func (s *PrometheusSink) LedgerPruned(count int64) {
	s.prunedTotal.Add(float64(count))
}

// Circuit breaker metrics implementation

func (s *PrometheusSink) BreakerStateChange(destination, state string) {
	s.breakerTransitions.WithLabelValues(destination, state).Inc()
}

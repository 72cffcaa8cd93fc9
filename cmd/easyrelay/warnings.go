package main

import (
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/config"
	"github.com/djlord-it/easy-relay/internal/retry"
)

// logConfigWarnings reports valid but risky combinations at startup.
func logConfigWarnings(cfg config.Config, logger *zap.Logger) {
	if cfg.LedgerBackend == "memory" {
		logger.Warn("LEDGER_BACKEND=memory: ledger history and queued requests are lost on restart",
			zap.String("priority", "P0"))
	} else if !cfg.ReconcileEnabled {
		logger.Warn("RECONCILE_ENABLED=false: requests queued when the process dies are never resubmitted",
			zap.String("priority", "P0"))
	}

	if !cfg.MetricsEnabled {
		logger.Warn("METRICS_ENABLED=false: queue depth and delivery outcomes are not observable",
			zap.String("priority", "P1"))
	}

	if cfg.MaxAttempts == 0 && cfg.Backoff == string(retry.StrategyNone) {
		logger.Warn("MAX_ATTEMPTS=0 with BACKOFF=none: a failing destination is retried in a tight loop",
			zap.String("priority", "P1"))
	}

	if cfg.ReconcileEnabled && cfg.Backoff != string(retry.StrategyNone) && cfg.ReconcileThreshold <= cfg.BackoffMax {
		logger.Warn("RECONCILE_THRESHOLD <= BACKOFF_MAX: parked retries may be resubmitted by the reconciler",
			zap.String("priority", "P1"),
			zap.Duration("threshold", cfg.ReconcileThreshold),
			zap.Duration("backoff_max", cfg.BackoffMax))
	}

	if cfg.MaxAttempts > 0 && cfg.NATSURL == "" {
		logger.Info("MAX_ATTEMPTS is bounded without NATS_URL: dead letters are only logged")
	}
}

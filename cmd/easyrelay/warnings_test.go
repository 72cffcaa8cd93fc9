package main

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/djlord-it/easy-relay/internal/config"
)

// captureWarnings calls logConfigWarnings with the given config and returns
// the logged messages.
func captureWarnings(cfg config.Config) []string {
	core, logs := observer.New(zapcore.InfoLevel)
	logConfigWarnings(cfg, zap.New(core))

	var out []string
	for _, e := range logs.All() {
		prefix := "INFO: "
		if p, ok := e.ContextMap()["priority"]; ok {
			prefix = "WARNING [" + p.(string) + "]: "
		}
		out = append(out, prefix+e.Message)
	}
	return out
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if strings.Contains(l, want) {
			return true
		}
	}
	return false
}

func TestLogConfigWarnings_MemoryBackend(t *testing.T) {
	cfg := config.Config{
		LedgerBackend:  "memory",
		MetricsEnabled: true,
		Backoff:        "exponential",
	}
	out := captureWarnings(cfg)

	if !contains(out, "WARNING [P0]: LEDGER_BACKEND=memory") {
		t.Error("expected memory backend P0 warning, got:", out)
	}
	// The reconciler warning only applies to durable ledgers.
	if contains(out, "RECONCILE_ENABLED=false") {
		t.Error("did not expect reconciler warning with memory backend, got:", out)
	}
}

func TestLogConfigWarnings_DurableWithoutReconciler(t *testing.T) {
	cfg := config.Config{
		LedgerBackend:  "postgres",
		MetricsEnabled: true,
		Backoff:        "exponential",
	}
	out := captureWarnings(cfg)

	if !contains(out, "WARNING [P0]: RECONCILE_ENABLED=false") {
		t.Error("expected reconciler P0 warning, got:", out)
	}
	if contains(out, "LEDGER_BACKEND=memory") {
		t.Error("did not expect memory warning, got:", out)
	}
}

func TestLogConfigWarnings_Clean(t *testing.T) {
	cfg := config.Config{
		LedgerBackend:      "postgres",
		ReconcileEnabled:   true,
		ReconcileThreshold: 10 * time.Minute,
		MetricsEnabled:     true,
		Backoff:            "exponential",
		BackoffMax:         5 * time.Minute,
	}

	if out := captureWarnings(cfg); len(out) != 0 {
		t.Error("did not expect any messages, got:", out)
	}
}

func TestLogConfigWarnings_MetricsDisabled(t *testing.T) {
	cfg := config.Config{
		LedgerBackend:    "redis",
		ReconcileEnabled: true,
		Backoff:          "constant",
	}
	out := captureWarnings(cfg)

	if !contains(out, "WARNING [P1]: METRICS_ENABLED=false") {
		t.Error("expected metrics P1 warning, got:", out)
	}
}

func TestLogConfigWarnings_TightRetryLoop(t *testing.T) {
	cfg := config.Config{LedgerBackend: "memory", MetricsEnabled: true, Backoff: "none"}
	if !contains(captureWarnings(cfg), "WARNING [P1]: MAX_ATTEMPTS=0 with BACKOFF=none") {
		t.Error("expected tight loop warning")
	}

	cfg.MaxAttempts = 5
	out := captureWarnings(cfg)
	if contains(out, "BACKOFF=none") {
		t.Error("did not expect tight loop warning with bounded attempts, got:", out)
	}
	if !contains(out, "INFO: MAX_ATTEMPTS is bounded without NATS_URL") {
		t.Error("expected dead letter INFO, got:", out)
	}

	cfg.NATSURL = "nats://localhost:4222"
	if contains(captureWarnings(cfg), "NATS_URL") {
		t.Error("did not expect dead letter INFO with NATS configured")
	}
}

func TestLogConfigWarnings_ReconcileThresholdBelowBackoff(t *testing.T) {
	cfg := config.Config{
		LedgerBackend:      "postgres",
		ReconcileEnabled:   true,
		ReconcileThreshold: time.Minute,
		MetricsEnabled:     true,
		Backoff:            "exponential",
		BackoffMax:         5 * time.Minute,
	}

	if !contains(captureWarnings(cfg), "WARNING [P1]: RECONCILE_THRESHOLD <= BACKOFF_MAX") {
		t.Error("expected threshold warning")
	}
}

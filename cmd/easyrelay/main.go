package main

import (
	"fmt"
	"os"

	"github.com/djlord-it/easy-relay/internal/config"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`easyrelay - reliable multi-destination delivery worker

Usage:
  easyrelay <command>

Commands:
  serve      Start the worker, HTTP API and optional NATS intake
  validate   Validate configuration and destinations file (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  HTTP_ADDR                 HTTP server address (default: ":8080")
  RELAY_ENDPOINT            Default dispatch endpoint (required without DESTINATIONS_FILE)
  RESOURCE_CODE             Routing resource code (default: "LINE01")
  RESOURCE_NAME             Routing resource name (default: "Line A")
  DESTINATIONS_FILE         YAML file with categories and ordered destinations

  LEDGER_BACKEND            memory, postgres or redis (default: "memory")
  LEDGER_MIRROR             "redis" mirrors postgres ledger writes to Redis
  LEDGER_TIMEOUT            Ledger write timeout (default: "5s")
  LEDGER_RETENTION          Ledger retention for janitor and Redis TTL (default: "720h")
  DATABASE_URL              PostgreSQL connection string (postgres backend)
  DATABASE_DRIVER           postgres (lib/pq) or pgx (default: "postgres")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")
  REDIS_ADDR                Redis address (redis backend, mirror, analytics)

  MAX_ATTEMPTS              Attempts before dead-lettering, 0 = unbounded (default: "0")
  BACKOFF                   none, constant or exponential (default: "none")
  BACKOFF_BASE              Base retry delay (default: "1s")
  BACKOFF_MAX               Max retry delay (default: "5m")
  BACKOFF_JITTER            Jitter fraction 0-1 (default: "0.2")
  DRAIN_TIMEOUT             Queue drain timeout on shutdown (default: "30s")
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before opening, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Open state duration (default: "2m")

  NATS_URL                  NATS server (enables intake, dead letters, nats destinations)
  NATS_SUBJECT              Intake subject (default: "relay.requests")
  NATS_DLQ_SUBJECT          Dead letter subject (default: "relay.dlq")
  KAFKA_BROKERS             Comma-separated brokers for kafka destinations
  AMQP_URL                  RabbitMQ URL for amqp destinations

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")
  ANALYTICS_ENABLED         Per-category outcome counters in Redis (default: "false")
  ANALYTICS_WINDOW          Analytics bucket size (default: "5m")
  ANALYTICS_RETENTION       Analytics bucket TTL (default: "24h")

  RECONCILE_ENABLED         Re-submit unsettled ledger requests (default: "false")
  RECONCILE_INTERVAL        How often to scan the ledger (default: "5m")
  RECONCILE_THRESHOLD       Age before a failed request is unsettled (default: "10m")
  RECONCILE_BATCH_SIZE      Max requests per cycle (default: "100")
  CLEANUP_SCHEDULE          Cron expression for ledger pruning, UTC unless prefixed
                            with CRON_TZ=<zone> (default: disabled)

  LOG_LEVEL                 debug, info, warn or error (default: "info")
  LOG_FORMAT                json or console (default: "json")`)
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("easyrelay version %s (commit: %s)\n", version, commit)
	return exitSuccess
}

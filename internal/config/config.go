package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/retry"
)

// Config holds all configuration for the easyrelay process.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	HTTPAddr         string `json:"http_addr"`
	RelayEndpoint    string `json:"relay_endpoint"`
	ResourceCode     string `json:"resource_code"`
	ResourceName     string `json:"resource_name"`
	DestinationsFile string `json:"destinations_file,omitempty"`

	// LedgerBackend: "memory", "postgres" or "redis".
	LedgerBackend  string `json:"ledger_backend"`
	DatabaseURL    string `json:"database_url,omitempty"`
	DatabaseDriver string `json:"database_driver"`
	RedisAddr      string `json:"redis_addr,omitempty"`

	// LedgerMirror: "redis" copies every postgres ledger write to Redis.
	LedgerMirror string `json:"ledger_mirror,omitempty"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	LedgerTimeout      time.Duration `json:"-"`
	LedgerTimeoutStr   string        `json:"ledger_timeout"`
	LedgerRetention    time.Duration `json:"-"`
	LedgerRetentionStr string        `json:"ledger_retention"`

	// MaxAttempts: 0 retries until success.
	MaxAttempts    int           `json:"max_attempts"`
	Backoff        string        `json:"backoff"`
	BackoffBase    time.Duration `json:"-"`
	BackoffBaseStr string        `json:"backoff_base"`
	BackoffMax     time.Duration `json:"-"`
	BackoffMaxStr  string        `json:"backoff_max"`
	BackoffJitter  float64       `json:"backoff_jitter"`

	DrainTimeout           time.Duration `json:"-"`
	DrainTimeoutStr        string        `json:"drain_timeout"`
	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	AnalyticsEnabled      bool          `json:"analytics_enabled"`
	AnalyticsWindow       time.Duration `json:"-"`
	AnalyticsWindowStr    string        `json:"analytics_window"`
	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	NATSURL        string   `json:"nats_url,omitempty"`
	NATSSubject    string   `json:"nats_subject"`
	NATSDLQSubject string   `json:"nats_dlq_subject"`
	KafkaBrokers   []string `json:"kafka_brokers,omitempty"`
	AMQPURL        string   `json:"amqp_url,omitempty"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`

	// ReconcileThreshold should exceed BACKOFF_MAX so parked retries are not resubmitted twice.
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`

	ReconcileBatchSize int `json:"reconcile_batch_size"`

	// CleanupSchedule is a cron expression for the ledger janitor; empty disables it.
	CleanupSchedule string `json:"cleanup_schedule,omitempty"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// problems found while reading numeric variables, reported by Validate.
	loadErrs ValidationErrors
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		RelayEndpoint:             os.Getenv("RELAY_ENDPOINT"),
		ResourceCode:              os.Getenv("RESOURCE_CODE"),
		ResourceName:              os.Getenv("RESOURCE_NAME"),
		DestinationsFile:          os.Getenv("DESTINATIONS_FILE"),
		LedgerBackend:             os.Getenv("LEDGER_BACKEND"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		DatabaseDriver:            os.Getenv("DATABASE_DRIVER"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		LedgerMirror:              os.Getenv("LEDGER_MIRROR"),
		DBConnMaxLifetimeStr:      os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:      os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		LedgerTimeoutStr:          os.Getenv("LEDGER_TIMEOUT"),
		LedgerRetentionStr:        os.Getenv("LEDGER_RETENTION"),
		Backoff:                   os.Getenv("BACKOFF"),
		BackoffBaseStr:            os.Getenv("BACKOFF_BASE"),
		BackoffMaxStr:             os.Getenv("BACKOFF_MAX"),
		DrainTimeoutStr:           os.Getenv("DRAIN_TIMEOUT"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		MetricsPort:               os.Getenv("METRICS_PORT"),
		AnalyticsEnabled:          os.Getenv("ANALYTICS_ENABLED") == "true",
		AnalyticsWindowStr:        os.Getenv("ANALYTICS_WINDOW"),
		AnalyticsRetentionStr:     os.Getenv("ANALYTICS_RETENTION"),
		NATSURL:                   os.Getenv("NATS_URL"),
		NATSSubject:               os.Getenv("NATS_SUBJECT"),
		NATSDLQSubject:            os.Getenv("NATS_DLQ_SUBJECT"),
		KafkaBrokers:              splitList(os.Getenv("KAFKA_BROKERS")),
		AMQPURL:                   os.Getenv("AMQP_URL"),
		CircuitBreakerCooldownStr: os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		ReconcileEnabled:          os.Getenv("RECONCILE_ENABLED") == "true",
		ReconcileIntervalStr:      os.Getenv("RECONCILE_INTERVAL"),
		ReconcileThresholdStr:     os.Getenv("RECONCILE_THRESHOLD"),
		CleanupSchedule:           strings.TrimSpace(os.Getenv("CLEANUP_SCHEDULE")),
		LogLevel:                  os.Getenv("LOG_LEVEL"),
		LogFormat:                 os.Getenv("LOG_FORMAT"),
	}

	cfg.DBMaxOpenConns = cfg.intVar("DB_MAX_OPEN_CONNS", 25, true)
	cfg.DBMaxIdleConns = cfg.intVar("DB_MAX_IDLE_CONNS", 5, true)
	cfg.MaxAttempts = cfg.intVar("MAX_ATTEMPTS", 0, false)
	cfg.CircuitBreakerThreshold = cfg.intVar("CIRCUIT_BREAKER_THRESHOLD", 5, false)
	cfg.ReconcileBatchSize = cfg.intVar("RECONCILE_BATCH_SIZE", 100, true)

	cfg.BackoffJitter = 0.2
	if s := os.Getenv("BACKOFF_JITTER"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			cfg.BackoffJitter = f
		} else {
			cfg.loadErrs = append(cfg.loadErrs, ValidationError{
				Field:   "BACKOFF_JITTER",
				Message: fmt.Sprintf("invalid number %q", s),
			})
		}
	}

	// Support the platform PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.ResourceCode == "" {
		cfg.ResourceCode = domain.DefaultResourceCode
	}
	if cfg.ResourceName == "" {
		cfg.ResourceName = domain.DefaultResourceName
	}
	if cfg.LedgerBackend == "" {
		cfg.LedgerBackend = "memory"
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "postgres"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.LedgerTimeoutStr == "" {
		cfg.LedgerTimeoutStr = "5s"
	}
	if cfg.LedgerRetentionStr == "" {
		cfg.LedgerRetentionStr = "720h"
	}
	if cfg.Backoff == "" {
		cfg.Backoff = string(retry.StrategyNone)
	}
	if cfg.BackoffBaseStr == "" {
		cfg.BackoffBaseStr = "1s"
	}
	if cfg.BackoffMaxStr == "" {
		cfg.BackoffMaxStr = "5m"
	}
	if cfg.DrainTimeoutStr == "" {
		cfg.DrainTimeoutStr = "30s"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.AnalyticsWindowStr == "" {
		cfg.AnalyticsWindowStr = "5m"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "24h"
	}
	if cfg.NATSSubject == "" {
		cfg.NATSSubject = "relay.requests"
	}
	if cfg.NATSDLQSubject == "" {
		cfg.NATSDLQSubject = "relay.dlq"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "5m"
	}
	if cfg.ReconcileThresholdStr == "" {
		cfg.ReconcileThresholdStr = "10m"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	// Parse durations; validation is handled separately by Validate().
	for _, d := range cfg.durations() {
		if v, err := time.ParseDuration(*d.raw); err == nil {
			*d.dst = v
		}
	}

	return cfg
}

type durationVar struct {
	env string
	raw *string
	dst *time.Duration
}

func (c *Config) durations() []durationVar {
	return []durationVar{
		{"DB_CONN_MAX_LIFETIME", &c.DBConnMaxLifetimeStr, &c.DBConnMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", &c.DBConnMaxIdleTimeStr, &c.DBConnMaxIdleTime},
		{"LEDGER_TIMEOUT", &c.LedgerTimeoutStr, &c.LedgerTimeout},
		{"LEDGER_RETENTION", &c.LedgerRetentionStr, &c.LedgerRetention},
		{"BACKOFF_BASE", &c.BackoffBaseStr, &c.BackoffBase},
		{"BACKOFF_MAX", &c.BackoffMaxStr, &c.BackoffMax},
		{"DRAIN_TIMEOUT", &c.DrainTimeoutStr, &c.DrainTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", &c.HTTPShutdownTimeoutStr, &c.HTTPShutdownTimeout},
		{"ANALYTICS_WINDOW", &c.AnalyticsWindowStr, &c.AnalyticsWindow},
		{"ANALYTICS_RETENTION", &c.AnalyticsRetentionStr, &c.AnalyticsRetention},
		{"CIRCUIT_BREAKER_COOLDOWN", &c.CircuitBreakerCooldownStr, &c.CircuitBreakerCooldown},
		{"RECONCILE_INTERVAL", &c.ReconcileIntervalStr, &c.ReconcileInterval},
		{"RECONCILE_THRESHOLD", &c.ReconcileThresholdStr, &c.ReconcileThreshold},
	}
}

// intVar reads a non-negative integer. An invalid value keeps the default and
// is reported by Validate.
func (c *Config) intVar(env string, def int, positive bool) int {
	s := os.Getenv(env)
	if s == "" {
		return def
	}
	n, err := parseInt(s)
	if err != nil || (positive && n == 0) {
		want := "a non-negative integer"
		if positive {
			want = "a positive integer"
		}
		c.loadErrs = append(c.loadErrs, ValidationError{
			Field:   env,
			Message: fmt.Sprintf("invalid value %q (must be %s)", s, want),
		})
		return def
	}
	return n
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// RetryPolicy builds the worker's retry policy. The strategy must have been
// checked by Validate.
func (c Config) RetryPolicy() retry.Policy {
	strategy, _ := retry.ParseStrategy(c.Backoff)
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		Strategy:    strategy,
		BaseDelay:   c.BackoffBase,
		MaxDelay:    c.BackoffMax,
		Factor:      2.0,
		Jitter:      c.BackoffJitter,
	}
}

func (c Config) Routing() domain.Routing {
	return domain.Routing{ResourceCode: c.ResourceCode, ResourceName: c.ResourceName}
}

func (c Config) Analytics() domain.AnalyticsConfig {
	return domain.AnalyticsConfig{
		Enabled:   c.AnalyticsEnabled,
		Window:    c.AnalyticsWindow,
		Retention: c.AnalyticsRetention,
	}
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	masked.AMQPURL = maskSecret(c.AMQPURL)
	masked.NATSURL = maskSecret(c.NATSURL)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a connection string, preserving only the URI scheme.
// URLs without credentials are returned unchanged.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return "***"
	}
	if !strings.Contains(rest, "@") && !strings.Contains(rest, "password=") {
		return s
	}
	return scheme + "://***"
}

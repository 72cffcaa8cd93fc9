package config

import (
	"fmt"
	"time"

	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/janitor"
	"github.com/djlord-it/easy-relay/internal/retry"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors, including the destination
// topology. Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	errs := append(ValidationErrors(nil), cfg.loadErrs...)

	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for _, d := range cfg.durations() {
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			add(d.env, "invalid duration: %v", err)
		} else if v <= 0 {
			add(d.env, "must be positive")
		}
	}

	switch cfg.LedgerBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			add("DATABASE_URL", "required when LEDGER_BACKEND=postgres")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			add("REDIS_ADDR", "required when LEDGER_BACKEND=redis")
		}
	default:
		add("LEDGER_BACKEND", "must be 'memory', 'postgres' or 'redis', got %q", cfg.LedgerBackend)
	}

	switch cfg.LedgerMirror {
	case "":
	case "redis":
		if cfg.LedgerBackend != "postgres" {
			add("LEDGER_MIRROR", "only supported with LEDGER_BACKEND=postgres")
		}
		if cfg.RedisAddr == "" {
			add("REDIS_ADDR", "required when LEDGER_MIRROR=redis")
		}
	default:
		add("LEDGER_MIRROR", "must be empty or 'redis', got %q", cfg.LedgerMirror)
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "pgx" {
		add("DATABASE_DRIVER", "must be 'postgres' or 'pgx', got %q", cfg.DatabaseDriver)
	}

	if _, err := retry.ParseStrategy(cfg.Backoff); err != nil {
		add("BACKOFF", "%v", err)
	}
	if cfg.BackoffJitter < 0 || cfg.BackoffJitter > 1 {
		add("BACKOFF_JITTER", "must be between 0 and 1, got %v", cfg.BackoffJitter)
	}

	if cfg.AnalyticsEnabled {
		if cfg.RedisAddr == "" {
			add("REDIS_ADDR", "required when ANALYTICS_ENABLED=true")
		}
		if cfg.AnalyticsRetention > 0 && cfg.AnalyticsRetention < cfg.AnalyticsWindow {
			add("ANALYTICS_RETENTION", "must be at least ANALYTICS_WINDOW (%s)", cfg.AnalyticsWindowStr)
		}
	}

	if cfg.CleanupSchedule != "" {
		if _, err := janitor.ParseSchedule(cfg.CleanupSchedule); err != nil {
			add("CLEANUP_SCHEDULE", "%v", err)
		}
	}

	t, err := cfg.Topology()
	if err != nil {
		add("DESTINATIONS_FILE", "%v", err)
	} else {
		errs = append(errs, validateTopology(cfg, t)...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateTopology(cfg Config, t Topology) ValidationErrors {
	var errs ValidationErrors

	field := "DESTINATIONS_FILE"
	if cfg.DestinationsFile == "" {
		field = "RELAY_ENDPOINT"
	}
	add := func(format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(t.Destinations) == 0 {
		add("at least one destination is required")
	}

	cats := make(map[string]bool)
	for _, c := range t.Categories {
		if c.Name == "" {
			add("category name is required")
			continue
		}
		if cats[c.Name] {
			add("duplicate category %q", c.Name)
		}
		cats[c.Name] = true
		switch domain.MergePolicy(c.Policy) {
		case "", domain.MergePolicyAny, domain.MergePolicyAll:
		default:
			add("category %q: policy must be 'any' or 'all', got %q", c.Name, c.Policy)
		}
	}

	names := make(map[string]bool)
	for i, d := range t.Destinations {
		label := fmt.Sprintf("destinations[%d]", i)
		if d.Name == "" {
			add("%s: name is required", label)
		} else {
			label = fmt.Sprintf("destination %q", d.Name)
			if names[d.Name] {
				add("duplicate destination name %q", d.Name)
			}
			names[d.Name] = true
		}

		if d.Timeout != "" {
			if _, err := time.ParseDuration(d.Timeout); err != nil {
				add("%s: invalid timeout %q", label, d.Timeout)
			}
		}

		switch domain.DestinationType(d.Type) {
		case domain.DestinationTypeHTTP:
			if d.URL == "" && cfg.RelayEndpoint == "" {
				add("%s: url is required when RELAY_ENDPOINT is not set", label)
			}
		case domain.DestinationTypeERP:
			if d.URL == "" && cfg.RelayEndpoint == "" {
				add("%s: url is required when RELAY_ENDPOINT is not set", label)
			}
		case domain.DestinationTypeFile:
			if d.Path == "" {
				add("%s: path is required", label)
			}
		case domain.DestinationTypeKafka:
			if d.Topic == "" {
				add("%s: topic is required", label)
			}
			if len(cfg.KafkaBrokers) == 0 {
				add("%s: KAFKA_BROKERS is not set", label)
			}
		case domain.DestinationTypeNATS:
			if d.Topic == "" {
				add("%s: topic is required", label)
			}
			if cfg.NATSURL == "" {
				add("%s: NATS_URL is not set", label)
			}
		case domain.DestinationTypeAMQP:
			if d.Exchange == "" && d.Topic == "" {
				add("%s: exchange or topic is required", label)
			}
			if cfg.AMQPURL == "" {
				add("%s: AMQP_URL is not set", label)
			}
		default:
			add("%s: unknown type %q", label, d.Type)
		}
	}

	return errs
}

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// MessageDelimiter separates destination messages merged into one category.
const MessageDelimiter = " | "

var (
	ErrNoRoutes          = errors.New("dispatcher: at least one destination is required")
	ErrDuplicateCategory = errors.New("dispatcher: duplicate category")
	ErrUnknownCategory   = errors.New("dispatcher: destination references undeclared category")
	ErrUnknownPolicy     = errors.New("dispatcher: unknown merge policy")
)

type Destination interface {
	Attempt(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult
}

// MetricsSink defines the interface for recording per-destination metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DestinationAttempt(destination, category string, succeeded bool, duration time.Duration)
}

// Route binds a named destination to the category it reports under.
type Route struct {
	Name        string
	Category    domain.Category
	Destination Destination
}

// Composite sends every payload to all routes, one after another in
// configuration order, and merges the results per category.
type Composite struct {
	routes     []Route
	categories []domain.CategoryConfig
	index      map[domain.Category]int

	metrics MetricsSink // optional, nil = disabled
	logger  *zap.Logger
}

// New validates the configuration. When categories is empty, categories are
// derived from the routes in order of first appearance with the "any" policy.
func New(categories []domain.CategoryConfig, routes []Route) (*Composite, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}

	if len(categories) == 0 {
		seen := make(map[domain.Category]bool)
		for _, r := range routes {
			if !seen[r.Category] {
				seen[r.Category] = true
				categories = append(categories, domain.CategoryConfig{Name: r.Category, Policy: domain.MergePolicyAny})
			}
		}
	}

	cats := make([]domain.CategoryConfig, len(categories))
	index := make(map[domain.Category]int, len(categories))
	for i, c := range categories {
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCategory, c.Name)
		}
		switch c.Policy {
		case "":
			c.Policy = domain.MergePolicyAny
		case domain.MergePolicyAny, domain.MergePolicyAll:
		default:
			return nil, fmt.Errorf("%w: %q for category %q", ErrUnknownPolicy, c.Policy, c.Name)
		}
		cats[i] = c
		index[c.Name] = i
	}

	for _, r := range routes {
		if r.Destination == nil {
			return nil, fmt.Errorf("dispatcher: destination %q is nil", r.Name)
		}
		if _, ok := index[r.Category]; !ok {
			return nil, fmt.Errorf("%w: %q uses %q", ErrUnknownCategory, r.Name, r.Category)
		}
	}

	rs := make([]Route, len(routes))
	copy(rs, routes)

	return &Composite{
		routes:     rs,
		categories: cats,
		index:      index,
		logger:     zap.NewNop(),
	}, nil
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (c *Composite) WithMetrics(sink MetricsSink) *Composite {
	c.metrics = sink
	return c
}

func (c *Composite) WithLogger(logger *zap.Logger) *Composite {
	if logger != nil {
		c.logger = logger.Named("dispatcher")
	}
	return c
}

func (c *Composite) Categories() []domain.Category {
	out := make([]domain.Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cat.Name
	}
	return out
}

// Accepts reports whether an outcome counts as delivered: at least one
// category succeeded and every required category succeeded.
func (c *Composite) Accepts(o domain.Outcome) bool {
	if !o.AnySucceeded() {
		return false
	}
	for _, cat := range c.categories {
		if cat.Required && !o.Succeeded(cat.Name) {
			return false
		}
	}
	return true
}

// Dispatch never fails; a panic raised by a destination propagates to the caller.
func (c *Composite) Dispatch(ctx context.Context, endpoint string, payload domain.Payload) domain.Outcome {
	outcome := domain.NewOutcome(c.Categories())

	type acc struct {
		seen      bool
		succeeded bool
		messages  []string
	}
	merged := make([]acc, len(c.categories))

	for _, r := range c.routes {
		start := time.Now()
		result := r.Destination.Attempt(ctx, endpoint, payload)
		elapsed := time.Since(start)

		outcome.Reports = append(outcome.Reports, domain.DestinationReport{
			Destination: r.Name,
			Category:    r.Category,
			Result:      result,
			Duration:    elapsed,
		})

		if c.metrics != nil {
			c.metrics.DestinationAttempt(r.Name, string(r.Category), result.Succeeded, elapsed)
		}
		c.logger.Debug("destination attempted",
			zap.String("destination", r.Name),
			zap.String("category", string(r.Category)),
			zap.String("request_id", payload.ID.String()),
			zap.Bool("succeeded", result.Succeeded),
			zap.String("message", result.Message),
			zap.Duration("duration", elapsed),
		)

		i := c.index[r.Category]
		a := &merged[i]
		switch c.categories[i].Policy {
		case domain.MergePolicyAll:
			if !a.seen {
				a.succeeded = result.Succeeded
			} else {
				a.succeeded = a.succeeded && result.Succeeded
			}
		default:
			a.succeeded = a.succeeded || result.Succeeded
		}
		a.seen = true
		// Empty messages keep their slot: one segment per destination.
		a.messages = append(a.messages, result.Message)
	}

	for i, cat := range c.categories {
		outcome.Set(cat.Name, domain.CategoryResult{
			Succeeded: merged[i].succeeded,
			Message:   strings.Join(merged[i].messages, MessageDelimiter),
		})
	}
	return outcome
}

package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Strategy string

const (
	// StrategyNone requeues immediately at the tail.
	StrategyNone        Strategy = "none"
	StrategyConstant    Strategy = "constant"
	StrategyExponential Strategy = "exponential"
)

const minDelay = 100 * time.Millisecond

// Policy decides whether a failed request is retried and how long it waits.
// MaxAttempts of 0 retries forever.
type Policy struct {
	MaxAttempts int
	Strategy    Strategy
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	Jitter      float64 // 0.0-1.0, fraction of the delay added or removed at random
}

// Unbounded retries forever with no delay.
func Unbounded() Policy {
	return Policy{Strategy: StrategyNone}
}

func DefaultExponential() Policy {
	return Policy{
		Strategy:  StrategyExponential,
		BaseDelay: 1 * time.Second,
		MaxDelay:  5 * time.Minute,
		Factor:    2.0,
		Jitter:    0.2,
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyNone, StrategyConstant, StrategyExponential:
		return Strategy(s), nil
	case "":
		return StrategyNone, nil
	default:
		return "", fmt.Errorf("unknown backoff strategy %q", s)
	}
}

// ShouldRetry reports whether another attempt is allowed after `attempts`
// attempts have completed.
func (p Policy) ShouldRetry(attempts int) bool {
	if p.MaxAttempts <= 0 {
		return true
	}
	return attempts < p.MaxAttempts
}

// NextDelay returns the wait before the next attempt, given the number of
// attempts already completed (1 after the first failure).
func (p Policy) NextDelay(attempts int) time.Duration {
	var delay float64

	switch p.Strategy {
	case StrategyConstant:
		delay = float64(p.BaseDelay)
	case StrategyExponential:
		n := attempts - 1
		if n < 0 {
			n = 0
		}
		factor := p.Factor
		if factor <= 1 {
			factor = 2.0
		}
		delay = float64(p.BaseDelay) * math.Pow(factor, float64(n))
	default:
		return 0
	}

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		jitterRange := delay * p.Jitter
		delay += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	if delay < float64(minDelay) {
		delay = float64(minDelay)
	}

	return time.Duration(delay)
}

func (p Policy) String() string {
	if p.MaxAttempts <= 0 {
		return fmt.Sprintf("%s/unbounded", p.Strategy)
	}
	return fmt.Sprintf("%s/max=%d", p.Strategy, p.MaxAttempts)
}

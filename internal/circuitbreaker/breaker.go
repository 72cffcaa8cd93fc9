package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateListener is notified on every transition of a named breaker.
type StateListener func(name, from, to string)

// Breakers keeps one breaker per destination name. A breaker opens after
// threshold consecutive failures and admits a single probe once cooldown
// has elapsed.
type Breakers struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.TwoStepCircuitBreaker
	threshold uint32
	cooldown  time.Duration
	listener  StateListener
}

// New returns a breaker set. A threshold <= 0 disables breaking.
func New(threshold int, cooldown time.Duration) *Breakers {
	if threshold < 0 {
		threshold = 0
	}
	return &Breakers{
		breakers:  make(map[string]*gobreaker.TwoStepCircuitBreaker),
		threshold: uint32(threshold),
		cooldown:  cooldown,
	}
}

func (b *Breakers) WithStateListener(fn StateListener) *Breakers {
	b.listener = fn
	return b
}

func (b *Breakers) Enabled() bool {
	return b != nil && b.threshold > 0
}

// Allow asks the named breaker for permission. On success the caller must
// invoke done with the attempt result.
func (b *Breakers) Allow(name string) (done func(success bool), err error) {
	if !b.Enabled() {
		return func(bool) {}, nil
	}

	done, err = b.get(name).Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, name)
		}
		return nil, err
	}
	return done, nil
}

// State returns "closed", "half-open" or "open".
func (b *Breakers) State(name string) string {
	if !b.Enabled() {
		return gobreaker.StateClosed.String()
	}
	b.mu.Lock()
	cb, ok := b.breakers[name]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

func (b *Breakers) get(name string) *gobreaker.TwoStepCircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[name]; ok {
		return cb
	}

	threshold := b.threshold
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     b.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.listener != nil {
				b.listener(name, from.String(), to.String())
			}
		},
	})
	b.breakers[name] = cb
	return cb
}

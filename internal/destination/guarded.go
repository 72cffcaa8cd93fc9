package destination

import (
	"context"

	"github.com/djlord-it/easy-relay/internal/circuitbreaker"
	"github.com/djlord-it/easy-relay/internal/domain"
)

// Guarded short-circuits a destination while its breaker is open.
type Guarded struct {
	name     string
	next     Destination
	breakers *circuitbreaker.Breakers
}

func NewGuarded(name string, next Destination, breakers *circuitbreaker.Breakers) *Guarded {
	return &Guarded{name: name, next: next, breakers: breakers}
}

func (g *Guarded) Attempt(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult {
	done, err := g.breakers.Allow(g.name)
	if err != nil {
		return domain.Failure(err.Error())
	}

	succeeded := false
	defer func() { done(succeeded) }()

	result := g.next.Attempt(ctx, endpoint, payload)
	succeeded = result.Succeeded
	return result
}

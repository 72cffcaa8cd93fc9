package destination

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// Destination delivers a payload to one external system.
// Ordinary failures are reported through the result, never as a panic or error.
type Destination interface {
	Attempt(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult
}

// Func adapts a plain function to Destination.
type Func func(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult

func (f Func) Attempt(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult {
	return f(ctx, endpoint, payload)
}

// Header names set by the network destinations.
const (
	HeaderRequestID = "X-EasyRelay-Request-ID"
	HeaderSignature = "X-EasyRelay-Signature"
)

func encode(payload domain.Payload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return body, nil
}

func failuref(format string, args ...any) domain.DestinationResult {
	return domain.Failure(fmt.Sprintf(format, args...))
}

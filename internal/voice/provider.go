package voice

import (
	"context"

	"github.com/husainf4l/ravoxai/internal/calls"
)

// Provider is the provider-agnostic voice platform boundary.
//
// Rules:
//   - No platform SDK calls outside this package.
//   - Keep request/response types platform-agnostic; the lifecycle controller
//     only sees calls.PlacementRequest and calls.Placement.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall asks the platform to dial the destination and hand the
	// conversation to the agent seeded with the request's context fields.
	PlaceCall(ctx context.Context, req calls.PlacementRequest) (calls.Placement, error)
}

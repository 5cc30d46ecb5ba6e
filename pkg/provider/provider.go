package provider

import (
	"context"

	"github.com/rhuss/modelbridge/pkg/api"
)

// Provider abstracts an inference backend. Each adapter speaks one upstream
// grammar internally.
//
// Implementations must be safe for concurrent use by multiple goroutines;
// all per-call state is created per call.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Generate performs a non-streaming call.
	Generate(ctx context.Context, opts *api.CallOptions) (*api.Result, error)

	// Stream performs a streaming call. The returned channel receives the
	// normalized event sequence and is closed after its terminal event.
	// Errors that occur before the stream opens are returned directly.
	Stream(ctx context.Context, opts *api.CallOptions) (<-chan api.StreamEvent, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

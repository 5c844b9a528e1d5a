// Package provider defines the LLM backend interface and the bridge that
// turns backend events into resumable output chunks.
package provider

import "context"

// Backend defines the interface for streaming LLM backends.
type Backend interface {
	// Name returns the backend name.
	Name() string

	// Stream sends a chat request and returns a channel of streaming events.
	Stream(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
}

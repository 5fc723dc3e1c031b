package domain

import "context"

// LLMProvider is the interface for any completion backend. The engine
// treats it as an opaque text-in/text-out capability; everything else
// (role instructions, budgets) travels in the ChatRequest.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "azure").
	Name() string
}

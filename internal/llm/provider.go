// Package llm is the transport layer for the external judging service: a
// provider abstraction over OpenAI-compatible chat completion APIs, plus a
// rate limiter and a mock implementation for tests.
package llm

import (
	"context"
	"encoding/json"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one completion call to a provider.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int

	// ResponseSchema, when non-nil, asks the provider for a
	// schema-constrained response. Providers that cannot honor it return
	// free text; callers must validate either way.
	ResponseSchema json.RawMessage
	// SchemaName labels the schema in provider requests that require one.
	SchemaName string
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	DurationMS   int64
}

// Provider is the interface to a chat completion backend.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Package llm defines the Provider interface for the language models used to
// correct sentences spelled out in sign language.
//
// Correction is a single short request/response exchange, so the interface
// only covers non-streaming completion.
package llm

import "context"

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one chat completion request.
type CompletionRequest struct {
	// SystemPrompt, when non-empty, is sent as the first system message.
	SystemPrompt string

	// Messages is the conversation after the system prompt.
	Messages []Message

	// Temperature controls randomness. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int

	// JSON asks for a reply that is a single JSON object. Backends without a
	// JSON mode ignore it and rely on the prompt.
	JSON bool
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage

	// Truncated is set when generation stopped at MaxTokens. The content is
	// then incomplete and usually not valid JSON.
	Truncated bool
}

// Provider is the abstraction over any LLM backend. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

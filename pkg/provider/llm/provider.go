// Package llm is the chat-completion seam between the assistant and the
// language model vendors. Adapters live in subpackages; all of them must be
// safe for concurrent use.
package llm

import "context"

// Usage is token accounting reported by the backend. Zero when unknown.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one non-streaming completion. Messages must not be
// empty. Zero Temperature and MaxTokens leave the backend defaults.
type CompletionRequest struct {
	Messages     []Message
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string

	// FinishReason is the backend's stop reason, e.g. "stop" or "length".
	FinishReason string

	Usage Usage
}

// Provider produces a reply for a conversation.
type Provider interface {
	// Complete blocks until the full reply arrives, the request fails or ctx
	// is done.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Package providers holds the outbound LLM client used by every stage
// that needs text generation: summaries, rephrasing, qualifying factors,
// query classification, response generation, and evaluation judging.
package providers

import "context"

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int

	// JSONMode asks the endpoint to constrain output to a JSON object.
	JSONMode bool
}

// ChatProvider sends chat completion requests to an LLM endpoint.
// Implementations must be safe for concurrent use.
type ChatProvider interface {
	// Name returns the provider's unique identifier.
	Name() string

	// Available returns true if the provider is configured and ready.
	Available() bool

	// Complete sends the request and returns the assistant message text.
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// RateLimitConfig defines rate limiting parameters for a provider.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// UserMessage builds a single-turn request with an optional system prompt.
func UserMessage(system, user string) []ChatMessage {
	var msgs []ChatMessage
	if system != "" {
		msgs = append(msgs, ChatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, ChatMessage{Role: "user", Content: user})
	return msgs
}

// Package llm adapts hosted model APIs to a single completion call and
// classifies their failures.
package llm

import "context"

// Roles understood by every provider adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the prompt sent to a model.
type Message struct {
	Role    string
	Content string
}

// Sampling holds the generation parameters sent with every request.
type Sampling struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// DefaultSampling returns the fixed operational sampling settings.
func DefaultSampling() Sampling {
	return Sampling{MaxTokens: 2000, Temperature: 0.7, TopP: 0.9}
}

// Client is the single call the chat service makes to a model; it is easy to mock in tests.
// Failures are returned as *Error.
type Client interface {
	Complete(ctx context.Context, messages []Message, model string, sampling Sampling) (string, error)
}

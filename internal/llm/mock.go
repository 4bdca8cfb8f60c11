package llm

import (
	"context"
	"fmt"
)

// MockClient answers without calling any model. It is selected with
// LLM_PROVIDER=mock for local development.
type MockClient struct{}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Complete echoes the last user message.
func (m *MockClient) Complete(ctx context.Context, messages []Message, model string, _ Sampling) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(ProviderMock, ErrProvider, err)
	}
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	if last == "" {
		return "[MOCK] This is a mock response.", nil
	}
	return fmt.Sprintf("[MOCK %s] Received your message: %q.", model, truncate(last, 100)), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

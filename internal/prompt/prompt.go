// Package prompt assembles the message list sent to the model.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/comigor/twin/internal/history"
	"github.com/comigor/twin/internal/llm"
)

// DefaultWindow is the number of stored messages shown to the model.
const DefaultWindow = 20

// DefaultSystem is used when no system instruction is configured.
const DefaultSystem = `You are an AI digital twin. You speak in the first person on behalf of the person you represent, ` +
	`answering questions about their background, work and interests. Be friendly, concise and honest; ` +
	`if you do not know something about them, say so instead of inventing it.`

// Build returns [system, last window stored messages, user]. Older messages
// are left out of the prompt but stay in the stored log. A window <= 0 means
// DefaultWindow.
func Build(stored []history.Message, system, user string, window int) []llm.Message {
	if window <= 0 {
		window = DefaultWindow
	}
	recent := stored
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	out := make([]llm.Message, 0, len(recent)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range recent {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(out, llm.Message{Role: llm.RoleUser, Content: user})
}

// LoadSystem resolves the system instruction: the contents of path when set,
// otherwise inline, otherwise DefaultSystem.
func LoadSystem(inline, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read system prompt: %w", err)
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, nil
		}
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	if s := strings.TrimSpace(inline); s != "" {
		return s, nil
	}
	return DefaultSystem, nil
}

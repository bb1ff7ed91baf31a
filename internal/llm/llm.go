// Package llm defines the completion-client interface the translation
// pipeline calls through, plus concrete providers (OpenAI-compatible,
// Ollama, Google Translate fallback) and a circuit-breaker wrapper.
package llm

import (
	"context"
	"fmt"
)

// Client is a single LLM completion call: prompt holds the instructions,
// content the text to operate on. Implementations must be safe for
// concurrent use.
type Client interface {
	Name() string
	Complete(ctx context.Context, prompt, content string) (string, error)
}

// Error is a typed provider failure carrying an optional HTTP-like status.
// Status 0 means the failure happened before any response arrived.
type Error struct {
	Provider string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// StatusCode exposes the HTTP status to the retry classifier.
func (e *Error) StatusCode() int { return e.Status }

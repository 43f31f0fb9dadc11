// Package llm provides chat clients for the supported model backends.
package llm

import (
	"context"

	"github.com/opsbridge/opsbridge/internal/domain"
)

// Client is a chat-completion backend. Chat always returns text: transport
// and API failures come back as human-readable error strings, never as a Go
// error, so callers are guaranteed a reply to show the user.
type Client interface {
	Chat(ctx context.Context, systemPrompt string, history []domain.Message, model string) string
}

// stubClient is the last-resort fallback when no server is configured.
type stubClient struct {
	message string
}

func (s stubClient) Chat(context.Context, string, []domain.Message, string) string {
	return s.message
}

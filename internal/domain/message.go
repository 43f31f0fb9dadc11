// Package domain contains core domain types for the opsbridge application.
package domain

import (
	"time"
)

// Message roles as stored in the conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a user's conversation history.
// Immutable once created; deleted in bulk when the user starts a new chat.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/opsbridge/opsbridge/internal/domain"
)

// Repository defines the persistence operations used by the chat, auth, and
// audit layers. All entities are scoped by user login.
type Repository interface {
	// AddMessage appends a conversation message and returns its id.
	AddMessage(ctx context.Context, login, role, content string) (int64, error)

	// LastMessages returns the most recent n messages, oldest first.
	LastMessages(ctx context.Context, login string, n int) ([]domain.Message, error)

	// MessagesSince returns messages with id strictly greater than sinceID,
	// oldest first.
	MessagesSince(ctx context.Context, login string, sinceID int64) ([]domain.Message, error)

	// MessageCount returns the number of stored messages for the user.
	MessageCount(ctx context.Context, login string) (int, error)

	// DeleteMessages removes the user's entire conversation history.
	DeleteMessages(ctx context.Context, login string) error

	// StagePendingActions replaces the user's staged actions document.
	// The write is delete-then-insert: last write wins, never a merge.
	StagePendingActions(ctx context.Context, login, doc string) error

	// GetPendingActions returns the most recently staged actions document,
	// or "" when nothing is staged.
	GetPendingActions(ctx context.Context, login string) (string, error)

	// ClearPendingActions removes the user's staged actions document.
	ClearPendingActions(ctx context.Context, login string) error

	// UserExists reports whether a user row exists for the login.
	UserExists(ctx context.Context, login string) (bool, error)

	// CreateUser inserts a new user row.
	CreateUser(ctx context.Context, login, passwordHash string) error

	// UpsertUser inserts or replaces the password hash for a login.
	UpsertUser(ctx context.Context, login, passwordHash string) error

	// PasswordHash returns the stored hash, or "" when the user is unknown.
	PasswordHash(ctx context.Context, login string) (string, error)

	// GetPromptOverride returns the user's system prompt override, "" if unset.
	GetPromptOverride(ctx context.Context, login string) (string, error)

	// SetPromptOverride stores the user's system prompt override.
	SetPromptOverride(ctx context.Context, login, override string) error

	// IsPendingPromptUpdate reports whether the next chat message from the
	// user should be consumed as a new prompt override.
	IsPendingPromptUpdate(ctx context.Context, login string) (bool, error)

	// SetPendingPromptUpdate sets or clears the pending-override flag.
	SetPendingPromptUpdate(ctx context.Context, login string, pending bool) error

	// GetSettings returns the user's settings, zero-valued when absent.
	GetSettings(ctx context.Context, login string) (domain.Settings, error)

	// SaveSettings stores the user's settings.
	SaveSettings(ctx context.Context, login string, s domain.Settings) error

	// AddAuditEntry appends an audit record.
	AddAuditEntry(ctx context.Context, e domain.AuditEntry) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/opsbridge/opsbridge/internal/config"
)

// promptStore is the slice of the repository the composer reads from.
type promptStore interface {
	GetPromptOverride(ctx context.Context, login string) (string, error)
}

// Composer builds the system prompt for a user: their override (or the
// cached default template) plus the capability appendix, which is read fresh
// on every call.
type Composer struct {
	loader *config.Loader
	store  promptStore
}

// NewComposer creates a Composer.
func NewComposer(loader *config.Loader, store promptStore) *Composer {
	return &Composer{loader: loader, store: store}
}

// Compose returns the full system prompt for a user.
func (c *Composer) Compose(ctx context.Context, login string) string {
	part1 := c.EffectivePart1(ctx, login)
	part2 := c.loader.LoadPromptPart2()
	return part1 + "\n\n" + part2
}

// EffectivePart1 returns the user's override when non-blank, otherwise the
// cached default template.
func (c *Composer) EffectivePart1(ctx context.Context, login string) string {
	override, err := c.store.GetPromptOverride(ctx, login)
	if err != nil {
		slog.Warn("failed to load prompt override", "login", login, "error", err)
	}
	if strings.TrimSpace(override) != "" {
		return override
	}
	return c.loader.PromptPart1()
}

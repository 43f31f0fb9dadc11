package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/opsbridge/opsbridge/internal/config"
	"github.com/opsbridge/opsbridge/internal/domain"
)

const fallbackModel = "gpt-4o-mini"

// SettingsSource provides the per-user model preferences the factory needs.
type SettingsSource interface {
	GetSettings(ctx context.Context, login string) (domain.Settings, error)
}

// Factory builds a chat client for a user from their selected server.
// Resolution order: the user's selection, then the configured default id,
// then the first enabled server. When nothing is usable the factory returns
// a stub that answers with a fixed error string, so callers always get a
// client that replies.
type Factory struct {
	loader   *config.Loader
	settings SettingsSource
}

// NewFactory creates a Factory.
func NewFactory(loader *config.Loader, settings SettingsSource) *Factory {
	return &Factory{loader: loader, settings: settings}
}

// ClientForUser resolves the chat client for a user.
func (f *Factory) ClientForUser(ctx context.Context, login string) Client {
	cfg := f.loader.Config()
	server := cfg.FindLLMServer(f.selectedServerID(ctx, login, cfg))
	if server == nil {
		enabled := cfg.EnabledLLMServers()
		if len(enabled) == 0 {
			slog.Error("no LLM servers available", "login", login)
			return stubClient{message: "Error: no LLM servers are available"}
		}
		server = &enabled[0]
	}
	return newClient(server)
}

// ModelForUser resolves the model name for a user: their explicit override,
// then the selected server's default, then the global fallback.
func (f *Factory) ModelForUser(ctx context.Context, login string) string {
	cfg := f.loader.Config()

	settings, err := f.settings.GetSettings(ctx, login)
	if err != nil {
		slog.Warn("failed to load user settings for model resolution", "login", login, "error", err)
	}
	if settings.ModelOverride != "" {
		return settings.ModelOverride
	}

	if server := cfg.FindLLMServer(f.selectedServerID(ctx, login, cfg)); server != nil {
		return server.DefaultModel
	}
	return fallbackModel
}

func (f *Factory) selectedServerID(ctx context.Context, login string, cfg *config.AppConfig) string {
	settings, err := f.settings.GetSettings(ctx, login)
	if err != nil {
		slog.Warn("failed to load user settings for server selection", "login", login, "error", err)
	}
	if settings.SelectedLLMServerID != "" {
		return settings.SelectedLLMServerID
	}
	return cfg.Defaults.DefaultLLMServerID
}

func newClient(server *config.LLMServer) Client {
	switch strings.ToUpper(server.Type) {
	case "OLLAMA":
		return NewOllamaClient(server.BaseURL)
	default:
		// OPENAI and anything unrecognized: the OpenAI wire format is the
		// de-facto compatibility baseline.
		return NewOpenAIClient(server.BaseURL, server.ResolveAPIKey())
	}
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsbridge/opsbridge/internal/auth"
	"github.com/opsbridge/opsbridge/internal/config"
	"github.com/opsbridge/opsbridge/internal/domain"
	"github.com/opsbridge/opsbridge/internal/sshagent"
	"github.com/opsbridge/opsbridge/internal/store"
)

// UserHandler serves user settings, LLM server discovery, config reload, and
// the server inventory proxy.
type UserHandler struct {
	repo    store.Repository
	loader  *config.Loader
	backend sshagent.Client
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(repo store.Repository, loader *config.Loader, backend sshagent.Client) *UserHandler {
	return &UserHandler{repo: repo, loader: loader, backend: backend}
}

// RegisterRoutes registers the user-facing utility routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/user/id", h.handleUserID)
	r.Get("/api/user/settings", h.handleGetSettings)
	r.Post("/api/user/settings", h.handleSaveSettings)
	r.Post("/api/user/settings/debug", h.handleToggleDebug)
	r.Get("/api/llm-servers", h.handleLLMServers)
	r.Post("/api/reload", h.handleReload)
	r.Get("/api/servers", h.handleServers)
}

func (h *UserHandler) handleUserID(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())
	settings := h.loadSettings(r, login)
	JSON(w, http.StatusOK, map[string]any{
		"login":               login,
		"showDebug":           settings.ShowDebug,
		"selectedLlmServerId": settings.SelectedLLMServerID,
		"modelOverride":       settings.ModelOverride,
	})
}

func (h *UserHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())
	settings := h.loadSettings(r, login)
	JSON(w, http.StatusOK, map[string]any{
		"login":               login,
		"showDebug":           settings.ShowDebug,
		"selectedLlmServerId": settings.SelectedLLMServerID,
		"modelOverride":       settings.ModelOverride,
	})
}

func (h *UserHandler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())

	var req struct {
		ShowDebug           bool   `json:"showDebug"`
		SelectedLLMServerID string `json:"selectedLlmServerId"`
		ModelOverride       string `json:"modelOverride"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := domain.Settings{
		ShowDebug:           req.ShowDebug,
		SelectedLLMServerID: req.SelectedLLMServerID,
		ModelOverride:       req.ModelOverride,
	}
	if err := h.repo.SaveSettings(r.Context(), login, settings); err != nil {
		slog.Error("failed to save settings", "login", login, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Settings saved"})
}

func (h *UserHandler) handleToggleDebug(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())

	var req struct {
		ShowDebug bool `json:"showDebug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := h.loadSettings(r, login)
	settings.ShowDebug = req.ShowDebug
	if err := h.repo.SaveSettings(r.Context(), login, settings); err != nil {
		slog.Error("failed to toggle debug", "login", login, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"showDebug": req.ShowDebug})
}

func (h *UserHandler) handleLLMServers(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	servers := make([]map[string]any, 0)
	for _, s := range cfg.EnabledLLMServers() {
		servers = append(servers, map[string]any{
			"id":           s.ID,
			"title":        s.Title,
			"type":         s.Type,
			"defaultModel": s.DefaultModel,
		})
	}
	JSON(w, http.StatusOK, map[string]any{
		"servers":         servers,
		"defaultServerId": cfg.Defaults.DefaultLLMServerID,
	})
}

func (h *UserHandler) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.loader.ReloadAll(); err != nil {
		slog.Error("config reload failed", "error", err)
		Error(w, http.StatusInternalServerError, "reload failed: previous configuration stays in effect")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Configuration reloaded"})
}

func (h *UserHandler) handleServers(w http.ResponseWriter, r *http.Request) {
	result, err := h.backend.ListServers(r.Context())
	if err != nil {
		result = "Error: " + err.Error()
	}
	JSON(w, http.StatusOK, map[string]any{"result": result})
}

func (h *UserHandler) loadSettings(r *http.Request, login string) domain.Settings {
	settings, err := h.repo.GetSettings(r.Context(), login)
	if err != nil {
		slog.Warn("failed to load settings", "login", login, "error", err)
	}
	return settings
}

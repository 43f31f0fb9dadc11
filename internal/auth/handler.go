package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode auth response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// credentialStore is the slice of the repository the login flow needs.
type credentialStore interface {
	PasswordHash(ctx context.Context, login string) (string, error)
}

// Handler serves login and logout.
type Handler struct {
	sessions *Sessions
	repo     credentialStore
}

// NewHandler creates an auth handler.
func NewHandler(sessions *Sessions, repo credentialStore) *Handler {
	return &Handler{sessions: sessions, repo: repo}
}

// HandleLogin handles POST /api/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	hash, err := h.repo.PasswordHash(r.Context(), req.Login)
	if err != nil {
		slog.Error("failed to load password hash", "login", req.Login, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := h.sessions.Create(req.Login)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("user logged in", "login", req.Login)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "login": req.Login})
}

// HandleLogout handles POST /api/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		h.sessions.Revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// bootstrapStore is the slice of the repository Bootstrap needs.
type bootstrapStore interface {
	UserExists(ctx context.Context, login string) (bool, error)
	CreateUser(ctx context.Context, login, passwordHash string) error
	UpsertUser(ctx context.Context, login, passwordHash string) error
}

// Bootstrap provisions the configured users. Mode UPSERT overwrites password
// hashes; CREATE_ONLY leaves existing users alone. Per-user failures are
// logged and skipped so one bad entry does not block startup.
func Bootstrap(ctx context.Context, repo bootstrapStore, mode string, users []BootstrapUserSpec) {
	slog.Info("bootstrapping users", "mode", mode, "count", len(users))

	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("failed to hash bootstrap password", "login", u.Login, "error", err)
			continue
		}
		switch strings.ToUpper(mode) {
		case "CREATE_ONLY":
			exists, err := repo.UserExists(ctx, u.Login)
			if err != nil {
				slog.Error("failed to check bootstrap user", "login", u.Login, "error", err)
				continue
			}
			if exists {
				slog.Info("user already exists, skipping", "login", u.Login)
				continue
			}
			if err := repo.CreateUser(ctx, u.Login, string(hash)); err != nil {
				slog.Error("failed to create bootstrap user", "login", u.Login, "error", err)
			}
		default: // UPSERT
			if err := repo.UpsertUser(ctx, u.Login, string(hash)); err != nil {
				slog.Error("failed to upsert bootstrap user", "login", u.Login, "error", err)
			}
		}
	}
	slog.Info("bootstrap completed")
}

// BootstrapUserSpec is one user to provision at startup.
type BootstrapUserSpec struct {
	Login    string
	Password string
}

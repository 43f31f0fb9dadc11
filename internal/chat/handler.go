package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/opsbridge/opsbridge/internal/api"
	"github.com/opsbridge/opsbridge/internal/auth"
)

// maxRequestBodySize bounds chat request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler exposes the chat, action, and prompt endpoints.
type Handler struct {
	svc      *Service
	executor *Executor
	hub      *Hub
}

// NewHandler creates the chat handler.
func NewHandler(svc *Service, executor *Executor, hub *Hub) *Handler {
	return &Handler{svc: svc, executor: executor, hub: hub}
}

// RegisterRoutes registers chat and prompt routes (authenticated).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/send", h.HandleSend)
		r.Post("/new", h.HandleNew)
		r.Post("/action/{id}", h.HandleAction)
		r.Get("/state", h.HandleState)
		r.Get("/stream", h.HandleStream)
	})
	r.Route("/api/prompt", func(r chi.Router) {
		r.Post("/start-update", h.HandleStartPromptUpdate)
		r.Post("/submit", h.HandleSubmitPrompt)
	})
}

// HandleSend handles POST /api/chat/send.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		api.Error(w, http.StatusBadRequest, "Text is required")
		return
	}

	slog.Info("chat send", "login", login, "text_length", len(text))
	result := h.svc.SendMessage(r.Context(), login, text)
	api.JSON(w, http.StatusOK, result)
}

// HandleNew handles POST /api/chat/new.
func (h *Handler) HandleNew(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())
	h.svc.NewChat(r.Context(), login)
	api.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleAction handles POST /api/chat/action/{id}: triggers one staged
// action. The staged document is read here and handed to the executor, so a
// concurrent restage between read and dispatch executes against the document
// the user actually saw.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())
	actionID := chi.URLParam(r, "id")

	actionsJSON := h.readStagedActions(r.Context(), login)
	if actionsJSON == "" {
		api.Error(w, http.StatusBadRequest, "No pending actions")
		return
	}

	result := h.executor.Execute(r.Context(), login, actionsJSON, actionID)
	if result.Success {
		h.svc.AppendActionResult(r.Context(), login, result)
	}
	api.JSON(w, http.StatusOK, result)
}

// HandleState handles GET /api/chat/state?since=N.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())

	var sinceID int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		sinceID = parsed
	}

	api.JSON(w, http.StatusOK, h.svc.GetState(r.Context(), login, sinceID))
}

// HandleStream handles GET /api/chat/stream: upgrades to a websocket and
// pushes every message appended for the user until the client disconnects.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "login", login, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	subID, ch := h.hub.Subscribe(login)
	defer h.hub.Unsubscribe(login, subID)

	slog.Info("chat stream connected", "login", login)

	// Drain reads so pings and the close handshake are processed.
	readCtx, cancelRead := context.WithCancel(r.Context())
	defer cancelRead()
	go func() {
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				cancelRead()
				return
			}
		}
	}()

	for {
		select {
		case <-readCtx.Done():
			slog.Info("chat stream disconnected", "login", login)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := wsjson.Write(readCtx, conn, msg); err != nil {
				slog.Warn("failed to write stream message", "login", login, "error", err)
				return
			}
		}
	}
}

// HandleStartPromptUpdate handles POST /api/prompt/start-update.
func (h *Handler) HandleStartPromptUpdate(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())
	api.JSON(w, http.StatusOK, h.svc.StartPromptUpdate(r.Context(), login))
}

// HandleSubmitPrompt handles POST /api/prompt/submit.
func (h *Handler) HandleSubmitPrompt(w http.ResponseWriter, r *http.Request) {
	login := auth.LoginFromContext(r.Context())

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		api.Error(w, http.StatusBadRequest, "Text is required")
		return
	}

	h.svc.SubmitPrompt(r.Context(), login, text)
	api.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) readStagedActions(ctx context.Context, login string) string {
	doc, err := h.svc.repo.GetPendingActions(ctx, login)
	if err != nil {
		slog.Error("failed to read staged actions", "login", login, "error", err)
		return ""
	}
	return doc
}

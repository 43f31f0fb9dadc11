// Package chat implements the session orchestration and action-directive
// protocol: it turns user text into model calls, splits replies into prose
// and staged actions, and executes a staged action when the user triggers it.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/opsbridge/opsbridge/internal/domain"
	"github.com/opsbridge/opsbridge/internal/llm"
	"github.com/opsbridge/opsbridge/internal/store"
)

// historyLimit caps the conversation window sent to the model. The stored
// history itself is never pruned; only the context window is bounded.
const historyLimit = 30

// limitBanner is prepended to the displayed (not the stored) assistant text
// on the turn the history reaches the limit.
const limitBanner = "⚠️ Conversation history reached its limit (30 messages). Oldest messages will be evicted from the model context.\n\n"

// promptUpdatedMessage confirms a completed prompt-override handshake.
const promptUpdatedMessage = "System prompt updated."

// SendResult is the client-facing outcome of one chat turn.
type SendResult struct {
	PromptUpdated bool   `json:"promptUpdated,omitempty"`
	Message       string `json:"message,omitempty"`
	Text          string `json:"text,omitempty"`
	HasActions    bool   `json:"hasActions"`
	ActionsJSON   string `json:"actionsJson,omitempty"`
	LimitReached  bool   `json:"limitReached"`
}

// State is a snapshot of a user's conversation for the client.
type State struct {
	Messages    []domain.Message `json:"messages"`
	ActionsJSON string           `json:"actionsJson,omitempty"`
	HasActions  bool             `json:"hasActions"`
}

// PromptUpdateStart is the response to a prompt-override handshake start.
type PromptUpdateStart struct {
	CurrentPrompt string `json:"currentPrompt"`
	Pending       bool   `json:"pending"`
}

// ClientResolver picks the chat client and model for a user. Implemented by
// llm.Factory.
type ClientResolver interface {
	ClientForUser(ctx context.Context, login string) llm.Client
	ModelForUser(ctx context.Context, login string) string
}

// Service is the per-request session orchestrator. It keeps no in-memory
// state of its own: all per-user state lives in the store, so concurrent
// requests race only at the persistence layer (last write wins, accepted).
type Service struct {
	repo     store.Repository
	composer *Composer
	resolver ClientResolver
	hub      *Hub
}

// NewService creates the orchestrator.
func NewService(repo store.Repository, composer *Composer, resolver ClientResolver, hub *Hub) *Service {
	return &Service{repo: repo, composer: composer, resolver: resolver, hub: hub}
}

// SendMessage processes one user input. When a prompt-override handshake is
// pending, the text is consumed as the new override and no model call is
// made. Otherwise the message is appended, the model is called with the
// bounded history, and the reply's action set (if any) replaces the staged
// one — or clears it, so a stale set never survives a clean turn.
func (s *Service) SendMessage(ctx context.Context, login, text string) SendResult {
	pending, err := s.repo.IsPendingPromptUpdate(ctx, login)
	if err != nil {
		slog.Warn("failed to read pending prompt flag", "login", login, "error", err)
	}
	if pending {
		if err := s.repo.SetPromptOverride(ctx, login, text); err != nil {
			slog.Error("failed to store prompt override", "login", login, "error", err)
		}
		if err := s.repo.SetPendingPromptUpdate(ctx, login, false); err != nil {
			slog.Error("failed to clear pending prompt flag", "login", login, "error", err)
		}
		return SendResult{PromptUpdated: true, Message: promptUpdatedMessage}
	}

	userMsgID, err := s.repo.AddMessage(ctx, login, domain.RoleUser, text)
	if err != nil {
		slog.Error("failed to append user message", "login", login, "error", err)
	} else {
		s.hub.Publish(login, domain.Message{ID: userMsgID, Role: domain.RoleUser, Content: text, CreatedAt: time.Now()})
	}

	count, err := s.repo.MessageCount(ctx, login)
	if err != nil {
		slog.Warn("failed to count messages", "login", login, "error", err)
	}
	limitReached := count >= historyLimit

	history, err := s.repo.LastMessages(ctx, login, historyLimit)
	if err != nil {
		slog.Warn("failed to load history", "login", login, "error", err)
		history = nil
	}

	systemPrompt := s.composer.Compose(ctx, login)
	client := s.resolver.ClientForUser(ctx, login)
	model := s.resolver.ModelForUser(ctx, login)

	reply := client.Chat(ctx, systemPrompt, history, model)
	parsed := Parse(reply)

	displayText := parsed.Text
	if limitReached {
		displayText = limitBanner + displayText
	}

	// The stored message is the parsed text, never the banner-prefixed one:
	// the banner applies to this turn's display only.
	assistantID, err := s.repo.AddMessage(ctx, login, domain.RoleAssistant, parsed.Text)
	if err != nil {
		slog.Error("failed to append assistant message", "login", login, "error", err)
	} else {
		s.hub.Publish(login, domain.Message{ID: assistantID, Role: domain.RoleAssistant, Content: parsed.Text, CreatedAt: time.Now()})
	}

	if parsed.HasActions() {
		if err := s.repo.StagePendingActions(ctx, login, parsed.ActionsJSON); err != nil {
			slog.Error("failed to stage actions", "login", login, "error", err)
		}
	} else {
		if err := s.repo.ClearPendingActions(ctx, login); err != nil {
			slog.Error("failed to clear actions", "login", login, "error", err)
		}
	}

	return SendResult{
		Text:         displayText,
		HasActions:   parsed.HasActions(),
		ActionsJSON:  parsed.ActionsJSON,
		LimitReached: limitReached,
	}
}

// NewChat deletes the user's history and staged actions. The pending
// prompt-override flag is deliberately left untouched.
func (s *Service) NewChat(ctx context.Context, login string) {
	if err := s.repo.DeleteMessages(ctx, login); err != nil {
		slog.Error("failed to delete messages", "login", login, "error", err)
	}
	if err := s.repo.ClearPendingActions(ctx, login); err != nil {
		slog.Error("failed to clear actions", "login", login, "error", err)
	}
}

// GetState returns the conversation snapshot: the last window when sinceID
// is not positive, otherwise everything strictly after sinceID.
func (s *Service) GetState(ctx context.Context, login string, sinceID int64) State {
	var msgs []domain.Message
	var err error
	if sinceID <= 0 {
		msgs, err = s.repo.LastMessages(ctx, login, historyLimit)
	} else {
		msgs, err = s.repo.MessagesSince(ctx, login, sinceID)
	}
	if err != nil {
		slog.Warn("failed to load state messages", "login", login, "error", err)
		msgs = nil
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	actionsJSON, err := s.repo.GetPendingActions(ctx, login)
	if err != nil {
		slog.Warn("failed to load pending actions", "login", login, "error", err)
		actionsJSON = ""
	}

	return State{
		Messages:    msgs,
		ActionsJSON: actionsJSON,
		HasActions:  actionsJSON != "",
	}
}

// StartPromptUpdate arms the one-shot handshake: the user's next chat
// message becomes the new override. Returns the prompt currently in effect
// so the client can prefill an editor.
func (s *Service) StartPromptUpdate(ctx context.Context, login string) PromptUpdateStart {
	if err := s.repo.SetPendingPromptUpdate(ctx, login, true); err != nil {
		slog.Error("failed to set pending prompt flag", "login", login, "error", err)
	}
	return PromptUpdateStart{
		CurrentPrompt: s.composer.EffectivePart1(ctx, login),
		Pending:       true,
	}
}

// SubmitPrompt stores the override directly, bypassing the handshake, and
// clears any pending flag.
func (s *Service) SubmitPrompt(ctx context.Context, login, text string) {
	if err := s.repo.SetPromptOverride(ctx, login, text); err != nil {
		slog.Error("failed to store prompt override", "login", login, "error", err)
	}
	if err := s.repo.SetPendingPromptUpdate(ctx, login, false); err != nil {
		slog.Error("failed to clear pending prompt flag", "login", login, "error", err)
	}
}

// AppendActionResult records an executed action's output as an assistant
// message so it becomes part of the conversation.
func (s *Service) AppendActionResult(ctx context.Context, login string, result ExecutionResult) {
	content := "Action result (" + result.API + "):\n```\n" + result.Output + "\n```"
	id, err := s.repo.AddMessage(ctx, login, domain.RoleAssistant, content)
	if err != nil {
		slog.Error("failed to append action result message", "login", login, "error", err)
		return
	}
	s.hub.Publish(login, domain.Message{ID: id, Role: domain.RoleAssistant, Content: content, CreatedAt: time.Now()})
}

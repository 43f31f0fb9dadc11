package chat

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsbridge/opsbridge/internal/domain"
	"github.com/opsbridge/opsbridge/internal/llm"
	"github.com/opsbridge/opsbridge/internal/store"
)

// scriptedClient returns canned replies in order and records what it was
// called with.
type scriptedClient struct {
	replies []string
	calls   int

	lastSystemPrompt string
	lastHistory      []domain.Message
	lastModel        string
}

func (c *scriptedClient) Chat(ctx context.Context, systemPrompt string, history []domain.Message, model string) string {
	c.lastSystemPrompt = systemPrompt
	c.lastHistory = history
	c.lastModel = model
	reply := "ok"
	if c.calls < len(c.replies) {
		reply = c.replies[c.calls]
	}
	c.calls++
	return reply
}

type fixedResolver struct {
	client llm.Client
	model  string
}

func (r *fixedResolver) ClientForUser(ctx context.Context, login string) llm.Client { return r.client }
func (r *fixedResolver) ModelForUser(ctx context.Context, login string) string      { return r.model }

func newTestService(t *testing.T, client llm.Client) (*Service, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	if err := repo.CreateUser(context.Background(), "alice", "hash"); err != nil {
		t.Fatal(err)
	}

	loader := newTestLoader(t, "default prompt", "capabilities")
	composer := NewComposer(loader, repo)
	resolver := &fixedResolver{client: client, model: "test-model"}
	return NewService(repo, composer, resolver, NewHub()), repo
}

func TestSendMessage_NormalTurn(t *testing.T) {
	client := &scriptedClient{replies: []string{"Hello there."}}
	svc, repo := newTestService(t, client)
	ctx := context.Background()

	result := svc.SendMessage(ctx, "alice", "hi")

	if result.PromptUpdated {
		t.Fatal("no handshake was pending")
	}
	if result.Text != "Hello there." {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if result.HasActions {
		t.Error("expected no actions")
	}
	if client.calls != 1 {
		t.Errorf("expected one model call, got %d", client.calls)
	}
	if client.lastModel != "test-model" {
		t.Errorf("unexpected model: %q", client.lastModel)
	}
	if client.lastSystemPrompt != "default prompt\n\ncapabilities" {
		t.Errorf("unexpected system prompt: %q", client.lastSystemPrompt)
	}
	if len(client.lastHistory) != 1 || client.lastHistory[0].Content != "hi" {
		t.Errorf("unexpected history: %+v", client.lastHistory)
	}

	msgs, err := repo.LastMessages(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected roles: %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestSendMessage_StagesAndClearsActions(t *testing.T) {
	withActions := "Run this?\n---ACTIONS_JSON_START---\n" +
		`{"actions":[{"id":"a1","api":"list_servers","params":{}}]}` +
		"\n---ACTIONS_JSON_END---"
	client := &scriptedClient{replies: []string{withActions, "Plain follow-up."}}
	svc, repo := newTestService(t, client)
	ctx := context.Background()

	first := svc.SendMessage(ctx, "alice", "show servers")
	if !first.HasActions {
		t.Fatal("expected staged actions")
	}
	staged, err := repo.GetPendingActions(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if staged != first.ActionsJSON {
		t.Errorf("staged document mismatch: %q vs %q", staged, first.ActionsJSON)
	}

	// A turn without a directive block clears the staged set.
	second := svc.SendMessage(ctx, "alice", "never mind")
	if second.HasActions {
		t.Error("expected no actions")
	}
	staged, err = repo.GetPendingActions(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if staged != "" {
		t.Errorf("expected cleared actions, got %q", staged)
	}
}

func TestSendMessage_PromptHandshake(t *testing.T) {
	client := &scriptedClient{replies: []string{"after handshake"}}
	svc, repo := newTestService(t, client)
	ctx := context.Background()

	start := svc.StartPromptUpdate(ctx, "alice")
	if !start.Pending {
		t.Fatal("expected pending handshake")
	}
	if start.CurrentPrompt != "default prompt" {
		t.Errorf("unexpected current prompt: %q", start.CurrentPrompt)
	}

	result := svc.SendMessage(ctx, "alice", "You are a strict SRE.")
	if !result.PromptUpdated {
		t.Fatal("expected the handshake to consume the message")
	}
	if result.Message != "System prompt updated." {
		t.Errorf("unexpected confirmation: %q", result.Message)
	}
	if client.calls != 0 {
		t.Errorf("handshake turn must not call the model, got %d calls", client.calls)
	}

	override, err := repo.GetPromptOverride(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if override != "You are a strict SRE." {
		t.Errorf("unexpected override: %q", override)
	}
	count, err := repo.MessageCount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("handshake turn must not store messages, got %d", count)
	}

	// The next turn is a normal one using the override.
	next := svc.SendMessage(ctx, "alice", "hi")
	if next.PromptUpdated {
		t.Error("flag must be cleared after the handshake")
	}
	if client.calls != 1 {
		t.Errorf("expected one model call, got %d", client.calls)
	}
	if !strings.HasPrefix(client.lastSystemPrompt, "You are a strict SRE.") {
		t.Errorf("override not applied: %q", client.lastSystemPrompt)
	}
}

func TestSendMessage_LimitBannerDisplayOnly(t *testing.T) {
	client := &scriptedClient{replies: []string{"Reply at the limit."}}
	svc, repo := newTestService(t, client)
	ctx := context.Background()

	for i := 0; i < 29; i++ {
		if _, err := repo.AddMessage(ctx, "alice", domain.RoleUser, "filler"); err != nil {
			t.Fatal(err)
		}
	}

	result := svc.SendMessage(ctx, "alice", "one more")
	if !result.LimitReached {
		t.Fatal("expected the limit to be reached")
	}
	if !strings.HasPrefix(result.Text, "⚠️") {
		t.Errorf("expected a banner prefix, got %q", result.Text)
	}
	if !strings.HasSuffix(result.Text, "Reply at the limit.") {
		t.Errorf("expected the reply after the banner, got %q", result.Text)
	}

	msgs, err := repo.MessagesSince(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	last := msgs[len(msgs)-1]
	if last.Content != "Reply at the limit." {
		t.Errorf("stored message must not carry the banner: %q", last.Content)
	}
}

func TestNewChat_LeavesHandshakePending(t *testing.T) {
	client := &scriptedClient{}
	svc, repo := newTestService(t, client)
	ctx := context.Background()

	svc.SendMessage(ctx, "alice", "hi")
	svc.StartPromptUpdate(ctx, "alice")

	svc.NewChat(ctx, "alice")

	count, err := repo.MessageCount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected empty history, got %d messages", count)
	}
	staged, err := repo.GetPendingActions(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if staged != "" {
		t.Errorf("expected no staged actions, got %q", staged)
	}
	pending, err := repo.IsPendingPromptUpdate(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !pending {
		t.Error("new chat must not cancel a pending handshake")
	}
}

func TestGetState(t *testing.T) {
	client := &scriptedClient{replies: []string{"first reply", "second reply"}}
	svc, _ := newTestService(t, client)
	ctx := context.Background()

	svc.SendMessage(ctx, "alice", "one")
	state := svc.GetState(ctx, "alice", 0)
	if len(state.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(state.Messages))
	}
	lastID := state.Messages[len(state.Messages)-1].ID

	svc.SendMessage(ctx, "alice", "two")
	delta := svc.GetState(ctx, "alice", lastID)
	if len(delta.Messages) != 2 {
		t.Fatalf("expected 2 new messages, got %d", len(delta.Messages))
	}
	if delta.Messages[0].Content != "two" || delta.Messages[1].Content != "second reply" {
		t.Errorf("unexpected delta: %+v", delta.Messages)
	}
}

func TestGetState_EmptyNeverNil(t *testing.T) {
	svc, _ := newTestService(t, &scriptedClient{})
	state := svc.GetState(context.Background(), "alice", 0)
	if state.Messages == nil {
		t.Error("messages must be an empty slice, not nil")
	}
	if state.HasActions {
		t.Error("expected no actions")
	}
}

func TestSubmitPrompt_BypassesHandshake(t *testing.T) {
	svc, repo := newTestService(t, &scriptedClient{})
	ctx := context.Background()

	svc.StartPromptUpdate(ctx, "alice")
	svc.SubmitPrompt(ctx, "alice", "direct override")

	override, err := repo.GetPromptOverride(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if override != "direct override" {
		t.Errorf("unexpected override: %q", override)
	}
	pending, err := repo.IsPendingPromptUpdate(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if pending {
		t.Error("direct submit must clear the pending flag")
	}
}

func TestAppendActionResult(t *testing.T) {
	svc, repo := newTestService(t, &scriptedClient{})
	ctx := context.Background()

	svc.AppendActionResult(ctx, "alice", ExecutionResult{API: "list_servers", Output: "web1"})

	msgs, err := repo.MessagesSince(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	want := "Action result (list_servers):\n```\nweb1\n```"
	if msgs[0].Content != want {
		t.Errorf("unexpected content: %q", msgs[0].Content)
	}
	if msgs[0].Role != domain.RoleAssistant {
		t.Errorf("unexpected role: %q", msgs[0].Role)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsbridge/opsbridge/internal/domain"
)

func TestOllamaClient_Chat(t *testing.T) {
	var gotPath string
	var gotReq ollamaRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "local reply"},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL)
	history := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}

	reply := client.Chat(context.Background(), "sys", history, "llama3")

	if reply != "local reply" {
		t.Errorf("unexpected reply: %q", reply)
	}
	if gotPath != "/api/chat" {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if gotReq.Stream {
		t.Error("streaming must be disabled")
	}
	if gotReq.Model != "llama3" {
		t.Errorf("unexpected model: %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Errorf("unexpected wire messages: %+v", gotReq.Messages)
	}
}

func TestOllamaClient_HTTPErrorBecomesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL)
	reply := client.Chat(context.Background(), "sys", nil, "missing")

	if reply != "Ollama error: HTTP 404" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsbridge/opsbridge/internal/domain"
)

// OllamaClient talks to an Ollama /api/chat endpoint. Local models can be
// slow, so the call deadline is much longer than for hosted backends.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the given base URL.
func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []wireMessage `json:"messages"`
}

type ollamaResponse struct {
	Message wireMessage `json:"message"`
}

// Chat sends the system prompt plus history and returns the assistant reply,
// or an error string on any failure.
func (c *OllamaClient) Chat(ctx context.Context, systemPrompt string, history []domain.Message, model string) string {
	body := ollamaRequest{
		Model:    model,
		Stream:   false,
		Messages: buildWireMessages(systemPrompt, history),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to encode Ollama request", "error", err)
		return "Error communicating with Ollama: " + err.Error()
	}

	url := c.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "Error communicating with Ollama: " + err.Error()
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Info("Ollama request", "model", model, "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Ollama call failed", "error", err)
		return "Error communicating with Ollama: " + err.Error()
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "Error communicating with Ollama: " + err.Error()
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama API error", "status", resp.StatusCode, "body", string(data))
		return fmt.Sprintf("Ollama error: HTTP %d", resp.StatusCode)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		slog.Error("failed to decode Ollama response", "error", err)
		return "Error communicating with Ollama: " + err.Error()
	}
	return parsed.Message.Content
}

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

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIClient creates a client for the given base URL. The key may be
// empty for keyless compatible servers.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

// Chat sends the system prompt plus history and returns the assistant reply,
// or an error string on any failure.
func (c *OpenAIClient) Chat(ctx context.Context, systemPrompt string, history []domain.Message, model string) string {
	body := openAIRequest{
		Model:       model,
		Messages:    buildWireMessages(systemPrompt, history),
		MaxTokens:   4096,
		Temperature: 0.7,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to encode OpenAI request", "error", err)
		return "Error communicating with AI service: " + err.Error()
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "Error communicating with AI service: " + err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	slog.Info("OpenAI request", "model", model, "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("OpenAI call failed", "error", err)
		return "Error communicating with AI service: " + err.Error()
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "Error communicating with AI service: " + err.Error()
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("OpenAI API error", "status", resp.StatusCode, "body", string(data))
		return fmt.Sprintf("AI service error: HTTP %d", resp.StatusCode)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		slog.Error("failed to decode OpenAI response", "error", err)
		return "Error communicating with AI service: " + err.Error()
	}
	if len(parsed.Choices) == 0 {
		return ""
	}
	return parsed.Choices[0].Message.Content
}

func buildWireMessages(systemPrompt string, history []domain.Message) []wireMessage {
	msgs := make([]wireMessage, 0, len(history)+1)
	msgs = append(msgs, wireMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		msgs = append(msgs, wireMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

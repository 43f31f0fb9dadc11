package sshagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsbridge/opsbridge/internal/config"
)

// HTTPClient talks to the external SSH agent service. The base URL is read
// from the config loader on every call so a reload takes effect immediately.
type HTTPClient struct {
	loader     *config.Loader
	httpClient *http.Client
}

// NewHTTPClient creates a client against the configured agent service.
func NewHTTPClient(loader *config.Loader) *HTTPClient {
	return &HTTPClient{
		loader:     loader,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ListServers asks the agent for its server inventory.
func (c *HTTPClient) ListServers(ctx context.Context) (string, error) {
	url := c.loader.Config().SSHAgent.BaseURL + "/servers"

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build list request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("SSH agent list_servers failed", "error", err)
		return "", fmt.Errorf("list servers: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return readResult(resp.Body)
}

// Execute runs a command on the named server via the agent.
func (c *HTTPClient) Execute(ctx context.Context, server, command string) (string, error) {
	url := c.loader.Config().SSHAgent.BaseURL + "/exec"

	payload, err := json.Marshal(map[string]string{
		"server":  server,
		"command": command,
	})
	if err != nil {
		return "", fmt.Errorf("encode exec request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build exec request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("SSH agent execute failed", "server", server, "error", err)
		return "", fmt.Errorf("execute command: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return readResult(resp.Body)
}

// readResult extracts the "result" field from an agent response. If the body
// is not a JSON object with a string result, the raw body is returned as-is
// so error pages and plain-text agents still surface something readable.
func readResult(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read agent response: %w", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err == nil {
		if result, ok := envelope["result"].(string); ok {
			return result, nil
		}
	}
	return string(data), nil
}

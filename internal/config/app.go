package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// AppConfig is the operator-editable JSON configuration. It describes the
// available LLM servers, how to reach the remote execution backend, and the
// users to provision at startup.
type AppConfig struct {
	SSHAgent           SSHAgentConfig  `json:"sshAgent"`
	Defaults           Defaults        `json:"defaults"`
	LLMServers         []LLMServer     `json:"llmServers"`
	BootstrapUsersMode string          `json:"bootstrapUsersMode"`
	BootstrapUsers     []BootstrapUser `json:"bootstrapUsers"`
}

// SSHAgentConfig selects and configures the remote execution backend.
// Mode "http" talks to an external agent service; mode "direct" opens SSH
// connections to the configured targets itself.
type SSHAgentConfig struct {
	Mode    string       `json:"mode"`
	BaseURL string       `json:"baseUrl"`
	Targets []ExecTarget `json:"targets"`
}

// ExecTarget is one server reachable by the direct SSH backend.
type ExecTarget struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	KeyFile  string `json:"keyFile,omitempty"`
}

// Defaults holds fallback selections.
type Defaults struct {
	DefaultLLMServerID string `json:"defaultLlmServerId"`
}

// LLMServer describes one model backend. Type selects the provider variant
// (OPENAI or OLLAMA, case-insensitive).
type LLMServer struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	BaseURL      string `json:"baseUrl"`
	APIKeyEnv    string `json:"apiKeyEnv"`
	DefaultModel string `json:"defaultModel"`
	Enabled      bool   `json:"enabled"`
}

// ResolveAPIKey reads the server's API key from its configured env var.
func (s *LLMServer) ResolveAPIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}

// BootstrapUser is a user provisioned at startup. The password is plaintext
// in the config file and hashed before it reaches the store.
type BootstrapUser struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func defaultAppConfig() *AppConfig {
	cfg := &AppConfig{
		SSHAgent:           SSHAgentConfig{Mode: "http", BaseURL: "http://127.0.0.1:25005"},
		BootstrapUsersMode: "UPSERT",
	}
	cfg.ensureDefaults()
	return cfg
}

func (c *AppConfig) ensureDefaults() {
	if c.SSHAgent.Mode == "" {
		c.SSHAgent.Mode = "http"
	}
	if c.SSHAgent.BaseURL == "" {
		c.SSHAgent.BaseURL = "http://127.0.0.1:25005"
	}
	if c.BootstrapUsersMode == "" {
		c.BootstrapUsersMode = "UPSERT"
	}
	if c.Defaults.DefaultLLMServerID == "" {
		c.Defaults.DefaultLLMServerID = "openai_default"
	}
	if len(c.LLMServers) == 0 {
		c.LLMServers = []LLMServer{{
			ID:           "openai_default",
			Title:        "OpenAI",
			Type:         "OPENAI",
			BaseURL:      "https://api.openai.com/v1",
			APIKeyEnv:    "OPENAI_API_KEY",
			DefaultModel: "gpt-4o-mini",
			Enabled:      true,
		}}
	}
}

// FindLLMServer returns the server with the given id, or nil.
func (c *AppConfig) FindLLMServer(id string) *LLMServer {
	for i := range c.LLMServers {
		if c.LLMServers[i].ID == id {
			return &c.LLMServers[i]
		}
	}
	return nil
}

// EnabledLLMServers returns the enabled servers in config order.
func (c *AppConfig) EnabledLLMServers() []LLMServer {
	var enabled []LLMServer
	for _, s := range c.LLMServers {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

func readAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read app config: %w", err)
	}
	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse app config: %w", err)
	}
	cfg.ensureDefaults()
	return &cfg, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testEnv(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		Port:            "8080",
		DBPath:          filepath.Join(dir, "app.db"),
		DataDir:         dir,
		AppConfigPath:   filepath.Join(dir, "config.json"),
		PromptPart1Path: filepath.Join(dir, "part1.txt"),
		PromptPart2Path: filepath.Join(dir, "part2.md"),
	}
}

func TestNewLoader_MissingFilesFallsBackToDefaults(t *testing.T) {
	loader := NewLoader(testEnv(t))

	app := loader.Config()
	if app.SSHAgent.Mode != "http" {
		t.Errorf("unexpected backend mode: %q", app.SSHAgent.Mode)
	}
	if app.Defaults.DefaultLLMServerID != "openai_default" {
		t.Errorf("unexpected default server: %q", app.Defaults.DefaultLLMServerID)
	}
	if len(app.LLMServers) != 1 || app.LLMServers[0].ID != "openai_default" {
		t.Errorf("unexpected servers: %+v", app.LLMServers)
	}
	if loader.PromptPart1() != "You are a DevOps assistant." {
		t.Errorf("unexpected built-in prompt: %q", loader.PromptPart1())
	}
	if loader.LoadPromptPart2() != "" {
		t.Error("expected empty part2 when the file is missing")
	}
}

func TestNewLoader_ReadsConfigAndPrompt(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env.AppConfigPath, `{
		"sshAgent": {"mode": "http", "baseUrl": "http://agent:9000"},
		"defaults": {"defaultLlmServerId": "local"},
		"llmServers": [
			{"id": "local", "title": "Local", "type": "OLLAMA", "baseUrl": "http://localhost:11434", "defaultModel": "llama3", "enabled": true}
		]
	}`)
	writeFile(t, env.PromptPart1Path, "custom template")

	loader := NewLoader(env)

	app := loader.Config()
	if app.SSHAgent.BaseURL != "http://agent:9000" {
		t.Errorf("unexpected base url: %q", app.SSHAgent.BaseURL)
	}
	if srv := app.FindLLMServer("local"); srv == nil || srv.Type != "OLLAMA" {
		t.Errorf("unexpected server lookup: %+v", srv)
	}
	if loader.PromptPart1() != "custom template" {
		t.Errorf("unexpected prompt: %q", loader.PromptPart1())
	}
}

func TestReloadAll_SwapsSnapshot(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env.AppConfigPath, `{"sshAgent": {"baseUrl": "http://one"}}`)
	loader := NewLoader(env)

	writeFile(t, env.AppConfigPath, `{"sshAgent": {"baseUrl": "http://two"}}`)
	writeFile(t, env.PromptPart1Path, "reloaded prompt")
	if err := loader.ReloadAll(); err != nil {
		t.Fatal(err)
	}

	if loader.Config().SSHAgent.BaseURL != "http://two" {
		t.Errorf("unexpected base url: %q", loader.Config().SSHAgent.BaseURL)
	}
	if loader.PromptPart1() != "reloaded prompt" {
		t.Errorf("unexpected prompt: %q", loader.PromptPart1())
	}
}

func TestReloadAll_FailureKeepsPreviousSnapshot(t *testing.T) {
	env := testEnv(t)
	writeFile(t, env.AppConfigPath, `{"sshAgent": {"baseUrl": "http://good"}}`)
	loader := NewLoader(env)

	writeFile(t, env.AppConfigPath, `{not json`)
	if err := loader.ReloadAll(); err == nil {
		t.Fatal("expected a reload error")
	}

	if loader.Config().SSHAgent.BaseURL != "http://good" {
		t.Errorf("previous snapshot must survive a failed reload, got %q",
			loader.Config().SSHAgent.BaseURL)
	}
}

func TestEnabledLLMServers(t *testing.T) {
	cfg := &AppConfig{LLMServers: []LLMServer{
		{ID: "a", Enabled: true},
		{ID: "b", Enabled: false},
		{ID: "c", Enabled: true},
	}}

	enabled := cfg.EnabledLLMServers()
	if len(enabled) != 2 || enabled[0].ID != "a" || enabled[1].ID != "c" {
		t.Errorf("unexpected enabled set: %+v", enabled)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Port: "8080", DBPath: "x.db", AppConfigPath: "c.json"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Port = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an empty port")
	}
}

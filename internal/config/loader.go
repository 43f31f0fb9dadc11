package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// defaultPromptPart1 is used when the template file is missing or unreadable.
const defaultPromptPart1 = "You are a DevOps assistant."

// Loader owns the process-wide cache of the app config and the default
// system prompt template (part 1). Both are refreshed together by ReloadAll;
// a failed reload leaves the previous snapshot in place. The capability
// appendix (part 2) is deliberately not cached so operational documentation
// edits are visible without a restart.
type Loader struct {
	env *Config

	mu          sync.RWMutex
	app         *AppConfig
	promptPart1 string
}

// NewLoader loads the initial snapshot. A missing or malformed config file
// is not fatal: the loader starts with built-in defaults, matching the
// degrade-don't-die policy of the rest of the system.
func NewLoader(env *Config) *Loader {
	l := &Loader{env: env}

	app, err := readAppConfig(env.AppConfigPath)
	if err != nil {
		slog.Error("failed to load app config, using defaults", "path", env.AppConfigPath, "error", err)
		app = defaultAppConfig()
	} else {
		slog.Info("app config loaded", "path", env.AppConfigPath)
	}
	l.app = app
	l.promptPart1 = l.readPromptPart1()
	return l
}

// Config returns the current app config snapshot.
func (l *Loader) Config() *AppConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.app
}

// PromptPart1 returns the cached default system prompt template.
func (l *Loader) PromptPart1() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.promptPart1
}

// LoadPromptPart2 reads the capability appendix fresh from disk. Returns ""
// on error so a missing appendix degrades to a shorter prompt.
func (l *Loader) LoadPromptPart2() string {
	data, err := os.ReadFile(l.env.PromptPart2Path)
	if err != nil {
		slog.Warn("could not load system prompt part2", "path", l.env.PromptPart2Path, "error", err)
		return ""
	}
	return string(data)
}

// ReloadAll re-reads the app config and the part-1 template and swaps the
// cache atomically. On failure the previous snapshot stays in effect.
func (l *Loader) ReloadAll() error {
	app, err := readAppConfig(l.env.AppConfigPath)
	if err != nil {
		return fmt.Errorf("reload app config: %w", err)
	}
	part1 := l.readPromptPart1()

	l.mu.Lock()
	l.app = app
	l.promptPart1 = part1
	l.mu.Unlock()

	slog.Info("config reloaded", "path", l.env.AppConfigPath)
	return nil
}

func (l *Loader) readPromptPart1() string {
	data, err := os.ReadFile(l.env.PromptPart1Path)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		slog.Warn("could not load default system prompt part1, using built-in",
			"path", l.env.PromptPart1Path, "error", err)
		return defaultPromptPart1
	}
	return string(data)
}

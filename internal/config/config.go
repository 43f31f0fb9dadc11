// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds environment-level configuration.
type Config struct {
	Port            string
	DBPath          string
	DataDir         string
	AppConfigPath   string
	PromptPart1Path string
	PromptPart2Path string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          getEnv("DB_PATH", filepath.Join(dataDir, "app.db")),
		DataDir:         dataDir,
		AppConfigPath:   getEnv("APP_CONFIG", filepath.Join(dataDir, "config.json")),
		PromptPart1Path: getEnv("PROMPT_PART1_PATH", filepath.Join(dataDir, "system_prompt_part1_default.txt")),
		PromptPart2Path: getEnv("PROMPT_PART2_PATH", filepath.Join(dataDir, "system_prompt_part2_apis.md")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AppConfigPath == "" {
		return fmt.Errorf("APP_CONFIG cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

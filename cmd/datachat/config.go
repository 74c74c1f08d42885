package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/datachat/pkg/llm"
)

// Config is the YAML configuration file shape.
type Config struct {
	LLM             llm.Config  `yaml:"llm"`
	CacheDir        string      `yaml:"cache_dir"`
	SandboxBudgetMs int         `yaml:"sandbox_budget_ms"`
	Redis           RedisConfig `yaml:"redis"`
	LogLevel        string      `yaml:"log_level"`
}

// RedisConfig configures the optional run-result publisher. An empty
// Addr disables it.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// LoadConfig reads the config file (optional) and applies defaults.
// The API key falls back to the DATACHAT_API_KEY environment variable
// so the file never has to hold a secret.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		CacheDir:        ".datachat-cache",
		SandboxBudgetMs: 10000,
		LogLevel:        "info",
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("DATACHAT_API_KEY")
	}
	return cfg, nil
}

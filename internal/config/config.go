// Package config provides configuration loading and structs for the Kaiseki server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EmbeddingConfig holds ONNX embedder and relevance cache settings.
type EmbeddingConfig struct {
	ModelPath      string `yaml:"model_path"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
	TopicCacheSize int    `yaml:"topic_cache_size"`
	MaxWorkers     int    `yaml:"max_workers"`
}

// ClassifyConfig holds the classification gateway settings: credentials,
// the two channels, failover tracking and batch planning.
type ClassifyConfig struct {
	APIKey             string `yaml:"api_key"`
	Model              string `yaml:"model"`
	StreamURL          string `yaml:"stream_url"`
	StreamModel        string `yaml:"stream_model"`
	PreferStream       *bool  `yaml:"prefer_stream"`
	ResponseTimeoutSec int    `yaml:"response_timeout_sec"`
	FailureThreshold   int    `yaml:"failure_threshold"`
	RecoveryWindowSec  int    `yaml:"recovery_window_sec"`
	TokenBudget        int    `yaml:"token_budget"`
	PromptOverhead     int    `yaml:"prompt_overhead"`
	TokensPerParagraph int    `yaml:"tokens_per_paragraph"`
	MaxGroupSize       int    `yaml:"max_group_size"`
	MaxParallelGroups  int    `yaml:"max_parallel_groups"`
	SmallBatchLimit    int    `yaml:"small_batch_limit"`
	StreamHeadCap      int    `yaml:"stream_head_cap"`
	StreamPauseMS      int    `yaml:"stream_pause_ms"`
}

// PreferStreamOrDefault returns whether the stream channel is preferred;
// defaults to true when unset.
func (c *ClassifyConfig) PreferStreamOrDefault() bool {
	if c.PreferStream != nil {
		return *c.PreferStream
	}
	return true
}

// SessionConfig holds the session store settings.
type SessionConfig struct {
	Backend      string `yaml:"backend"`
	RedisURL     string `yaml:"redis_url"`
	DatabasePath string `yaml:"database_path"`
	TTLSeconds   int    `yaml:"ttl_seconds"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Session.DatabasePath = expandPath(cfg.Session.DatabasePath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

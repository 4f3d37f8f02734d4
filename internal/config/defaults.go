package config

import "os"

// ApplyDefaults sets default values for any zero values in cfg. The API key
// falls back to the OPENAI_API_KEY environment variable so it can stay out
// of the config file.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kaiseki/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TopicCacheSize == 0 {
		cfg.Embedding.TopicCacheSize = 50
	}
	if cfg.Embedding.MaxWorkers == 0 {
		cfg.Embedding.MaxWorkers = 2
	}
	if cfg.Classify.APIKey == "" {
		cfg.Classify.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Classify.Model == "" {
		cfg.Classify.Model = "gpt-4o"
	}
	if cfg.Classify.StreamURL == "" {
		cfg.Classify.StreamURL = "wss://api.openai.com/v1/realtime"
	}
	if cfg.Classify.StreamModel == "" {
		cfg.Classify.StreamModel = "gpt-4o-realtime-preview"
	}
	if cfg.Classify.ResponseTimeoutSec == 0 {
		cfg.Classify.ResponseTimeoutSec = 15
	}
	if cfg.Classify.FailureThreshold == 0 {
		cfg.Classify.FailureThreshold = 3
	}
	if cfg.Classify.RecoveryWindowSec == 0 {
		cfg.Classify.RecoveryWindowSec = 300
	}
	if cfg.Classify.TokenBudget == 0 {
		cfg.Classify.TokenBudget = 4000
	}
	if cfg.Classify.PromptOverhead == 0 {
		cfg.Classify.PromptOverhead = 1000
	}
	if cfg.Classify.TokensPerParagraph == 0 {
		cfg.Classify.TokensPerParagraph = 200
	}
	if cfg.Classify.MaxGroupSize == 0 {
		cfg.Classify.MaxGroupSize = 12
	}
	if cfg.Classify.MaxParallelGroups == 0 {
		cfg.Classify.MaxParallelGroups = 5
	}
	if cfg.Classify.SmallBatchLimit == 0 {
		cfg.Classify.SmallBatchLimit = 10
	}
	if cfg.Classify.StreamHeadCap == 0 {
		cfg.Classify.StreamHeadCap = 5
	}
	if cfg.Classify.StreamPauseMS == 0 {
		cfg.Classify.StreamPauseMS = 500
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.DatabasePath == "" {
		cfg.Session.DatabasePath = "/usr/local/var/kaiseki/data/db/sessions.db"
	}
	if cfg.Session.TTLSeconds == 0 {
		cfg.Session.TTLSeconds = 3600
	}
}

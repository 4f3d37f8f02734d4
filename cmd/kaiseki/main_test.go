package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/config"
)

func TestLoadConfigExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kaiseki.yaml")
	content := []byte("server:\n  host: 127.0.0.1\n  port: 9090\n")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path: got %q, want %q", resolved, path)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("server config: got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	// Defaults still apply to sections the file omits.
	if cfg.Session.Backend != "memory" {
		t.Errorf("session backend default: got %q", cfg.Session.Backend)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestInitializeComponentsWithoutModel(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	cfg.Classify.APIKey = "test-key"

	components, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer components.Close()

	// A missing embedding model degrades relevance to not-ready; it must
	// not be replaced with synthetic vectors.
	if components.Embedder != nil {
		t.Error("embedder should be nil when the model cannot be loaded")
	}
	if components.Relevance.Ready() {
		t.Error("relevance service should not report ready without a model")
	}
}

// Package main is the Kaiseki CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/kaiseki/internal/classify"
	"github.com/hyperjump/kaiseki/internal/config"
	"github.com/hyperjump/kaiseki/internal/embedding"
	"github.com/hyperjump/kaiseki/internal/gateway"
	"github.com/hyperjump/kaiseki/internal/orchestrator"
	"github.com/hyperjump/kaiseki/internal/relevance"
	"github.com/hyperjump/kaiseki/internal/server"
	"github.com/hyperjump/kaiseki/internal/session"
	"github.com/hyperjump/kaiseki/internal/transport"
	"github.com/hyperjump/kaiseki/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kaiseki/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kaiseki server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "analyze":
		runAnalyze()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kaiseki version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (channel selection, failover, session store)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Orchestrator,
		components.Gateway,
		components.Relevance,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topic := fs.String("topic", "", "topic to score relevance and labels against (required)")
	sessionID := fs.String("session", "", "session id to reuse (default: generate a new one)")
	_ = fs.Parse(os.Args[2:])

	if *topic == "" || fs.NArg() < 1 {
		fmt.Println("Usage: kaiseki analyze --topic <topic> <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	result, err := components.Orchestrator.AnalyzeDocument(context.Background(), string(data), *topic, *sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// Components holds the initialized services shared by the subcommands.
type Components struct {
	Store        session.Store
	Embedder     embedding.Embedder
	Relevance    *relevance.Service
	Gateway      *gateway.Gateway
	Orchestrator *orchestrator.Orchestrator
}

func (c *Components) Close() {
	if c.Gateway != nil {
		_ = c.Gateway.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	// A missing model does not abort startup, but it must not be papered
	// over either: relevance stays not-ready and its fields stay null.
	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
	)
	if err != nil {
		logger.Warn("embedding model unavailable, relevance scoring disabled",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
	} else {
		embedder = onnxEmbedder
	}

	rel := relevance.NewService(
		embedder,
		cfg.Embedding.CacheSize,
		cfg.Embedding.TopicCacheSize,
		cfg.Embedding.MaxWorkers,
	)

	planner := classify.PlannerConfig{
		TokenBudget:        cfg.Classify.TokenBudget,
		PromptOverhead:     cfg.Classify.PromptOverhead,
		TokensPerParagraph: cfg.Classify.TokensPerParagraph,
		MaxGroupSize:       cfg.Classify.MaxGroupSize,
	}
	tracker := gateway.NewFailureTracker(
		cfg.Classify.FailureThreshold,
		time.Duration(cfg.Classify.RecoveryWindowSec)*time.Second,
	)
	gwCfg := gateway.Config{
		PreferStream:    cfg.Classify.PreferStreamOrDefault(),
		SmallBatchLimit: cfg.Classify.SmallBatchLimit,
		StreamHeadCap:   cfg.Classify.StreamHeadCap,
		StreamPause:     time.Duration(cfg.Classify.StreamPauseMS) * time.Millisecond,
	}

	var gw *gateway.Gateway
	if cfg.Classify.APIKey != "" {
		stream := transport.NewStreamChannel(transport.StreamConfig{
			URL:             cfg.Classify.StreamURL,
			APIKey:          cfg.Classify.APIKey,
			Model:           cfg.Classify.StreamModel,
			ResponseTimeout: time.Duration(cfg.Classify.ResponseTimeoutSec) * time.Second,
		}, logger)
		batch := transport.NewBatchChannel(
			transport.NewOpenAIClient(cfg.Classify.APIKey, cfg.Classify.Model),
			planner,
			cfg.Classify.MaxParallelGroups,
			logger,
		)
		gw = gateway.New(stream, batch, tracker, planner, gwCfg, logger)
	} else {
		logger.Warn("no API key configured, label classification disabled")
		gw = gateway.New(nil, nil, tracker, planner, gwCfg, logger)
	}

	store, err := session.New(context.Background(), session.Options{
		Backend:      cfg.Session.Backend,
		RedisURL:     cfg.Session.RedisURL,
		DatabasePath: cfg.Session.DatabasePath,
		TTL:          time.Duration(cfg.Session.TTLSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	orch := orchestrator.New(store, gw, rel, logger)

	return &Components{
		Store:        store,
		Embedder:     embedder,
		Relevance:    rel,
		Gateway:      gw,
		Orchestrator: orch,
	}, nil
}

func printUsage() {
	fmt.Println(`kaiseki - Multi-path document analysis gateway

Usage:
  kaiseki server [flags]                     Start the HTTP server
  kaiseki analyze --topic <topic> <file>     Analyze a document once and print JSON
  kaiseki status [flags]                     Show gateway and cache status
  kaiseki version                            Show version
  kaiseki help                               Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kaiseki/config.yaml)
  --debug            Enable debug logging (channel selection, failover, session store)

Analyze Flags:
  --config string    Config file path
  --topic string     Topic to score relevance and labels against (required)
  --session string   Session id to reuse (default: generate a new one)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  kaiseki server
  kaiseki analyze --topic "machine learning" draft.txt
  kaiseki status`)
}

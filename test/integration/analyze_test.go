// Package integration provides end-to-end tests over the real component stack.
package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/classify"
	"github.com/hyperjump/kaiseki/internal/embedding"
	"github.com/hyperjump/kaiseki/internal/gateway"
	"github.com/hyperjump/kaiseki/internal/models"
	"github.com/hyperjump/kaiseki/internal/orchestrator"
	"github.com/hyperjump/kaiseki/internal/relevance"
	"github.com/hyperjump/kaiseki/internal/session"
	"github.com/hyperjump/kaiseki/internal/transport"
)

// scriptedCompletions answers every request with a numbered label list long
// enough to cover any group the planner can build.
type scriptedCompletions struct {
	label string
}

func (c *scriptedCompletions) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	var b strings.Builder
	for i := 1; i <= classify.DefaultMaxGroupSize; i++ {
		fmt.Fprintf(&b, "%d. %s\n", i, c.label)
	}
	return b.String(), nil
}

const document = "Machine learning models learn patterns from data.\n\n" +
	"My cat, on the other hand, learns where the food is kept.\n\n" +
	"Training a model requires careful validation against held-out data.\n\n" +
	"Overfitting happens when a model memorizes instead of generalizing."

func TestIntegration_AnalyzeAndEdit(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	store, err := session.New(context.Background(), session.Options{
		Backend:      session.BackendSQLite,
		DatabasePath: filepath.Join(dir, "sessions.db"),
		TTL:          time.Hour,
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	embedder := embedding.NewMockEmbedder(16)
	defer embedder.Close()
	rel := relevance.NewService(embedder, 100, 10, 2)

	batch := transport.NewBatchChannel(&scriptedCompletions{label: classify.LabelTopicDevelopment}, classify.PlannerConfig{}, 2, logger)
	gw := gateway.New(nil, batch, nil, classify.PlannerConfig{}, gateway.Config{}, logger)

	orch := orchestrator.New(store, gw, rel, logger)
	ctx := context.Background()

	result, err := orch.AnalyzeDocument(ctx, document, "machine learning", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Paragraphs) != 4 {
		t.Fatalf("paragraphs: got %d, want 4", len(result.Paragraphs))
	}
	for i, p := range result.Paragraphs {
		if p.Metrics.Label == nil || *p.Metrics.Label != classify.LabelTopicDevelopment {
			t.Errorf("paragraph %d: label %v", i, p.Metrics.Label)
		}
		if p.Metrics.LabelMethod != models.MethodBatch {
			t.Errorf("paragraph %d: method %q", i, p.Metrics.LabelMethod)
		}
		if p.Metrics.Relevance == nil {
			t.Errorf("paragraph %d: missing relevance", i)
		}
		if p.Metrics.LIX == nil {
			t.Errorf("paragraph %d: missing readability", i)
		}
	}
	if result.Metadata.LabelStatus != models.LabelStatusComplete {
		t.Errorf("label status: got %q", result.Metadata.LabelStatus)
	}

	// The session survives a fresh orchestrator over the same store.
	sessionID := result.Metadata.SessionID
	orch2 := orchestrator.New(store, gw, rel, logger)
	reloaded, err := orch2.Result(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Paragraphs) != 4 {
		t.Fatalf("reloaded paragraphs: got %d", len(reloaded.Paragraphs))
	}

	// A structural edit clears labels across the whole session.
	merged, err := orch2.MergeParagraphs(ctx, sessionID, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Paragraphs) != 3 {
		t.Fatalf("paragraphs after merge: got %d", len(merged.Paragraphs))
	}
	for i, p := range merged.Paragraphs {
		if p.Metrics.Label != nil {
			t.Errorf("paragraph %d: label should be cleared after merge, got %q", i, *p.Metrics.Label)
		}
		if p.Metrics.LIX == nil {
			t.Errorf("paragraph %d: readability lost after merge", i)
		}
	}

	// Refresh restores labels over the batch channel.
	refreshed, err := orch2.RefreshLabels(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range refreshed.Paragraphs {
		if p.Metrics.Label == nil {
			t.Errorf("paragraph %d: label missing after refresh", i)
		}
	}
}

package relevance

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kaiseki/internal/embedding"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(embedding.NewMockEmbedder(64), 100, 10, 2)
}

func TestServiceNotReady(t *testing.T) {
	s := NewService(nil, 100, 10, 2)
	if s.Ready() {
		t.Fatal("Ready() should be false with nil embedder")
	}
	if _, err := s.Embed(context.Background(), "text"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Embed err = %v, want ErrNotReady", err)
	}
	if _, err := s.Score(context.Background(), "text", "topic"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Score err = %v, want ErrNotReady", err)
	}
	if _, err := s.ScoreBatch(context.Background(), []string{"a"}, "topic"); !errors.Is(err, ErrNotReady) {
		t.Errorf("ScoreBatch err = %v, want ErrNotReady", err)
	}
}

func TestScoreIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.Score(ctx, "The quick brown fox.", "animals")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// Second call hits the cache; the score must be bit-for-bit identical.
	second, err := s.Score(ctx, "The quick brown fox.", "animals")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if first != second {
		t.Errorf("scores differ across identical calls: %v vs %v", first, second)
	}
	if first < -1 || first > 1 {
		t.Errorf("score %v outside [-1, 1]", first)
	}
}

func TestScoreBatchOrderAndRange(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	texts := []string{"alpha paragraph", "beta paragraph", "gamma paragraph"}

	scores, err := s.ScoreBatch(ctx, texts, "letters")
	if err != nil {
		t.Fatalf("ScoreBatch: %v", err)
	}
	if len(scores) != len(texts) {
		t.Fatalf("got %d scores, want %d", len(scores), len(texts))
	}
	for i, sc := range scores {
		if sc < -1 || sc > 1 {
			t.Errorf("score[%d] = %v outside [-1, 1]", i, sc)
		}
	}

	// Individual scoring must agree with batch scoring element by element.
	for i, text := range texts {
		single, err := s.Score(ctx, text, "letters")
		if err != nil {
			t.Fatalf("Score(%q): %v", text, err)
		}
		if single != scores[i] {
			t.Errorf("order mismatch at %d: single %v, batch %v", i, single, scores[i])
		}
	}
}

func TestScoreBatchMixedCache(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Warm one entry, then batch over warm and cold texts.
	if _, err := s.Score(ctx, "warm", "topic"); err != nil {
		t.Fatalf("Score: %v", err)
	}
	scores, err := s.ScoreBatch(ctx, []string{"cold one", "warm", "cold two"}, "topic")
	if err != nil {
		t.Fatalf("ScoreBatch: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("got %d scores", len(scores))
	}
	warm, err := s.Score(ctx, "warm", "topic")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores[1] != warm {
		t.Errorf("cached text scored %v in batch, %v alone", scores[1], warm)
	}
}

func TestInvalidateParagraphs(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Embed(ctx, "some text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if s.CacheLen() != 1 {
		t.Fatalf("CacheLen = %d, want 1", s.CacheLen())
	}
	s.InvalidateParagraphs([]string{"some text", "never cached"})
	if s.CacheLen() != 0 {
		t.Errorf("CacheLen = %d after invalidate, want 0", s.CacheLen())
	}
	// Recomputing after invalidation yields the same value.
	before, _ := s.Score(ctx, "some text", "topic")
	s.InvalidateParagraphs([]string{"some text"})
	after, _ := s.Score(ctx, "some text", "topic")
	if before != after {
		t.Errorf("score changed after invalidation: %v vs %v", before, after)
	}
}

func TestWorkerPoolRespectsContext(t *testing.T) {
	s := newTestService(t)
	// Saturate the pool so acquisition has to wait on the context.
	for i := 0; i < cap(s.workers); i++ {
		s.workers <- struct{}{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Embed(ctx, "blocked"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

package relevance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/embedding"
	"github.com/hyperjump/kaiseki/pkg/utils"
)

// ErrNotReady is returned when the embedding model failed to load. Relevance
// scoring is degraded for the process lifetime; the other analysis
// dimensions are unaffected.
var ErrNotReady = errors.New("relevance: embedding model not available")

// Service owns the embedding model handle and the shared vector caches.
// Paragraph vectors are cached by content hash across all sessions and
// topics; topic vectors have a small separate cache. Model calls are
// confined to a bounded worker pool.
type Service struct {
	embedder   embedding.Embedder
	paragraphs *vectorCache
	topics     *vectorCache
	workers    chan struct{}
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates the relevance service. A nil embedder puts the service
// permanently in not-ready mode: scoring returns nil values and the reason
// is logged once per call site.
func NewService(embedder embedding.Embedder, cacheSize, topicCacheSize, maxWorkers int, opts ...Option) *Service {
	if topicCacheSize <= 0 {
		topicCacheSize = 50
	}
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	s := &Service{
		embedder:   embedder,
		paragraphs: newVectorCache(cacheSize),
		topics:     newVectorCache(topicCacheSize),
		workers:    make(chan struct{}, maxWorkers),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready reports whether the embedding model is usable.
func (s *Service) Ready() bool {
	return s.embedder != nil
}

// hashText is the cache key for a text: a content-addressed digest, so equal
// inputs share an entry regardless of session or topic.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (s *Service) acquireWorker(ctx context.Context) error {
	select {
	case s.workers <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) releaseWorker() {
	<-s.workers
}

// Embed returns the embedding for text, computing and caching on miss.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	key := hashText(text)
	if vec, ok := s.paragraphs.get(key); ok {
		return vec, nil
	}
	if err := s.acquireWorker(ctx); err != nil {
		return nil, err
	}
	defer s.releaseWorker()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed paragraph: %w", err)
	}
	s.paragraphs.set(key, vec)
	return vec, nil
}

// TopicVector returns the embedding for a topic string, cached separately
// from paragraph vectors.
func (s *Service) TopicVector(ctx context.Context, topic string) ([]float32, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	key := hashText(topic)
	if vec, ok := s.topics.get(key); ok {
		return vec, nil
	}
	if err := s.acquireWorker(ctx); err != nil {
		return nil, err
	}
	defer s.releaseWorker()

	vec, err := s.embedder.Embed(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("embed topic: %w", err)
	}
	s.topics.set(key, vec)
	return vec, nil
}

// Relevance returns the cosine similarity of two vectors rounded to three
// decimals, always in [-1, 1].
func (s *Service) Relevance(topicVec, paragraphVec []float32) float64 {
	return utils.Round3(utils.CosineSimilarity(topicVec, paragraphVec))
}

// Score computes the relevance of one paragraph to topic.
func (s *Service) Score(ctx context.Context, text, topic string) (float64, error) {
	topicVec, err := s.TopicVector(ctx, topic)
	if err != nil {
		return 0, err
	}
	paraVec, err := s.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	return s.Relevance(topicVec, paraVec), nil
}

// ScoreBatch computes relevance for each text against topic, preserving
// input order. Cached texts are served from the cache; the misses are
// computed in a single model call for throughput and written back.
func (s *Service) ScoreBatch(ctx context.Context, texts []string, topic string) ([]float64, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	topicVec, err := s.TopicVector(ctx, topic)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIndices []int
	for i, text := range texts {
		if vec, ok := s.paragraphs.get(hashText(text)); ok {
			vectors[i] = vec
		} else {
			missTexts = append(missTexts, text)
			missIndices = append(missIndices, i)
		}
	}

	if len(missTexts) > 0 {
		if err := s.acquireWorker(ctx); err != nil {
			return nil, err
		}
		computed, err := s.embedder.EmbedBatch(ctx, missTexts)
		s.releaseWorker()
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		for k, idx := range missIndices {
			vectors[idx] = computed[k]
			s.paragraphs.set(hashText(missTexts[k]), computed[k])
		}
		s.logger.Debug("relevance batch computed",
			zap.Int("total", len(texts)),
			zap.Int("cache_hits", len(texts)-len(missTexts)),
			zap.Int("computed", len(missTexts)),
		)
	}

	scores := make([]float64, len(texts))
	for i, vec := range vectors {
		scores[i] = s.Relevance(topicVec, vec)
	}
	return scores, nil
}

// InvalidateParagraphs drops cached vectors for the given texts. Cache keys
// are content hashes, so this is only a memory hint after edits; skipping it
// never affects correctness.
func (s *Service) InvalidateParagraphs(texts []string) {
	for _, text := range texts {
		s.paragraphs.remove(hashText(text))
	}
}

// CacheLen returns the current paragraph-cache size, for status reporting.
func (s *Service) CacheLen() int {
	return s.paragraphs.len()
}

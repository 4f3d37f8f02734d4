package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/classify"
	"github.com/hyperjump/kaiseki/internal/models"
	"github.com/hyperjump/kaiseki/internal/transport"
)

// Fan-out defaults. Documents at or under the small-batch limit go through
// the stream one by one; larger documents send a short head through the
// stream and the rest through grouped batch requests.
const (
	DefaultSmallBatchLimit = 10
	DefaultStreamHeadCap   = 5
	DefaultStreamPause     = 500 * time.Millisecond
)

// streamChannel is the per-chunk channel the gateway prefers.
type streamChannel interface {
	ClassifyChunk(ctx context.Context, req transport.ChunkRequest) (string, error)
	Topic() string
	Close() error
}

// groupChannel is the stateless fallback channel.
type groupChannel interface {
	ClassifyChunk(ctx context.Context, req transport.ChunkRequest) (string, error)
	ClassifyGroup(ctx context.Context, texts []string, topic string) ([]string, error)
	Close() error
}

// Config tunes the gateway's fan-out strategy.
type Config struct {
	PreferStream    bool
	SmallBatchLimit int
	StreamHeadCap   int
	StreamPause     time.Duration
}

func (c *Config) applyDefaults() {
	if c.SmallBatchLimit <= 0 {
		c.SmallBatchLimit = DefaultSmallBatchLimit
	}
	if c.StreamHeadCap <= 0 {
		c.StreamHeadCap = DefaultStreamHeadCap
	}
	if c.StreamPause <= 0 {
		c.StreamPause = DefaultStreamPause
	}
}

// ChunkOutcome is the classification result for one paragraph. Label is
// either a vocabulary label or a sentinel; Method records which channel
// produced it.
type ChunkOutcome struct {
	Label  string
	Method string
	Err    string
}

// Gateway routes classification requests across the stream and batch
// channels with automatic failover. Both channels degraded still yields an
// outcome per paragraph, tagged with a sentinel label.
type Gateway struct {
	stream  streamChannel
	batch   groupChannel
	tracker *FailureTracker
	planner classify.PlannerConfig
	cfg     Config
	logger  *zap.Logger

	streamCount atomic.Int64
	batchCount  atomic.Int64
	failedCount atomic.Int64
}

// New creates a gateway. Either channel may be nil; a nil stream channel
// routes everything to batch, and vice versa.
func New(stream streamChannel, batch groupChannel, tracker *FailureTracker, planner classify.PlannerConfig, cfg Config, logger *zap.Logger) *Gateway {
	cfg.applyDefaults()
	if tracker == nil {
		tracker = NewFailureTracker(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		stream:  stream,
		batch:   batch,
		tracker: tracker,
		planner: planner,
		cfg:     cfg,
		logger:  logger,
	}
}

// Available reports whether at least one channel is configured.
func (g *Gateway) Available() bool {
	return g.stream != nil || g.batch != nil
}

// ClassifyChunk classifies one paragraph, preferring the stream when it is
// healthy and falling back to batch on eligible stream failures. When both
// channels fail the outcome carries the error_api_call sentinel; the error
// return is reserved for context cancellation.
func (g *Gateway) ClassifyChunk(ctx context.Context, id, text, topic string, forceStream bool) (ChunkOutcome, error) {
	if !g.Available() {
		return ChunkOutcome{Label: classify.SentinelUnavailableAPI, Method: models.MethodFailed}, nil
	}

	useStream := g.stream != nil && (forceStream || (g.cfg.PreferStream && g.tracker.StreamUsable()))
	req := transport.ChunkRequest{ID: id, Text: text, Topic: topic}

	if useStream {
		label, err := g.stream.ClassifyChunk(ctx, req)
		if err == nil {
			g.tracker.RecordSuccess()
			g.streamCount.Add(1)
			return ChunkOutcome{Label: label, Method: models.MethodStream}, nil
		}
		if ctx.Err() != nil {
			return ChunkOutcome{}, ctx.Err()
		}
		g.tracker.RecordFailure()
		// Non-fallback errors also end as sentinel outcomes rather than
		// error returns: the caller always receives one outcome per chunk,
		// with the cause preserved in Err, and only context cancellation
		// aborts the call.
		if !transport.FallbackEligible(err) || g.batch == nil {
			g.failedCount.Add(1)
			label := classify.SentinelAPICall
			if transport.KindOf(err) == transport.KindTimeout {
				label = classify.SentinelTimeout
			}
			return ChunkOutcome{Label: label, Method: models.MethodFailed, Err: err.Error()}, nil
		}
		g.logger.Debug("stream failed, falling back to batch",
			zap.String("chunk", id), zap.Error(err))
	}

	if g.batch == nil {
		g.failedCount.Add(1)
		return ChunkOutcome{Label: classify.SentinelUnavailableAPI, Method: models.MethodFailed}, nil
	}

	label, err := g.batch.ClassifyChunk(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ChunkOutcome{}, ctx.Err()
		}
		g.failedCount.Add(1)
		outcome := ChunkOutcome{
			Label:  classify.SentinelAPICall,
			Method: models.MethodFailed,
			Err:    fmt.Sprintf("both channels failed: %v", err),
		}
		return outcome, nil
	}
	g.batchCount.Add(1)
	return ChunkOutcome{Label: label, Method: models.MethodBatch}, nil
}

// ClassifyAll classifies every paragraph, returning one outcome per input
// in order. Small documents go through the stream sequentially; large ones
// split into a stream head for fast first results and grouped batch
// requests for the rest, running concurrently.
func (g *Gateway) ClassifyAll(ctx context.Context, texts []string, topic string) ([]ChunkOutcome, error) {
	outcomes := make([]ChunkOutcome, len(texts))
	if len(texts) == 0 {
		return outcomes, nil
	}
	if !g.Available() {
		for i := range outcomes {
			outcomes[i] = ChunkOutcome{Label: classify.SentinelUnavailableAPI, Method: models.MethodFailed}
		}
		return outcomes, nil
	}

	streamOK := g.stream != nil && g.cfg.PreferStream && g.tracker.StreamUsable()
	if len(texts) > g.cfg.SmallBatchLimit && streamOK && g.batch != nil {
		return g.classifyHybrid(ctx, texts, topic, outcomes)
	}
	if g.batch != nil && !streamOK {
		return g.classifyGrouped(ctx, texts, topic, outcomes, 0)
	}
	return g.classifySequential(ctx, texts, topic, outcomes)
}

// classifySequential sends chunks one at a time through ClassifyChunk,
// pausing between stream responses to stay under the session rate.
func (g *Gateway) classifySequential(ctx context.Context, texts []string, topic string, outcomes []ChunkOutcome) ([]ChunkOutcome, error) {
	for i, text := range texts {
		outcome, err := g.ClassifyChunk(ctx, chunkID(i), text, topic, false)
		if err != nil {
			return nil, err
		}
		outcomes[i] = outcome
		if outcome.Method == models.MethodStream && i < len(texts)-1 {
			select {
			case <-time.After(g.cfg.StreamPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return outcomes, nil
}

// classifyHybrid runs a short stream head sequentially while the remainder
// goes through grouped batch requests, then merges in input order.
func (g *Gateway) classifyHybrid(ctx context.Context, texts []string, topic string, outcomes []ChunkOutcome) ([]ChunkOutcome, error) {
	head := g.cfg.StreamHeadCap
	if quarter := len(texts) / 4; quarter < head {
		head = quarter
	}
	if head < 1 {
		head = 1
	}
	g.logger.Info("hybrid fan-out",
		zap.Int("total", len(texts)),
		zap.Int("stream_head", head),
		zap.Int("batch_rest", len(texts)-head),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < head; i++ {
			outcome, err := g.ClassifyChunk(ctx, chunkID(i), texts[i], topic, true)
			if err != nil {
				errCh <- err
				return
			}
			outcomes[i] = outcome
			if i < head-1 {
				select {
				case <-time.After(g.cfg.StreamPause):
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := g.classifyGrouped(ctx, texts[head:], topic, outcomes, head); err != nil {
			errCh <- err
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

// classifyGrouped plans texts into token-bounded groups and classifies them
// concurrently on the batch channel, writing into outcomes at offset.
func (g *Gateway) classifyGrouped(ctx context.Context, texts []string, topic string, outcomes []ChunkOutcome, offset int) ([]ChunkOutcome, error) {
	groups := classify.Plan(texts, g.planner)
	var wg sync.WaitGroup
	errCh := make(chan error, len(groups))

	for _, group := range groups {
		wg.Add(1)
		go func(group classify.Group) {
			defer wg.Done()
			groupTexts := make([]string, len(group.Indices))
			for k, idx := range group.Indices {
				groupTexts[k] = texts[idx]
			}
			labels, err := g.batch.ClassifyGroup(ctx, groupTexts, topic)
			if err != nil {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				g.failedCount.Add(int64(len(group.Indices)))
				for _, idx := range group.Indices {
					outcomes[offset+idx] = ChunkOutcome{
						Label:  classify.SentinelAPICall,
						Method: models.MethodFailed,
						Err:    err.Error(),
					}
				}
				return
			}
			g.batchCount.Add(int64(len(group.Indices)))
			for k, idx := range group.Indices {
				outcomes[offset+idx] = ChunkOutcome{Label: labels[k], Method: models.MethodBatch}
			}
		}(group)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

// Stats reports per-channel usage and stream health.
type Stats struct {
	StreamChunks int64        `json:"stream_chunks"`
	BatchChunks  int64        `json:"batch_chunks"`
	FailedChunks int64        `json:"failed_chunks"`
	ActiveTopic  string       `json:"active_topic,omitempty"`
	Tracker      TrackerStats `json:"tracker"`
}

func (g *Gateway) Stats() Stats {
	s := Stats{
		StreamChunks: g.streamCount.Load(),
		BatchChunks:  g.batchCount.Load(),
		FailedChunks: g.failedCount.Load(),
		Tracker:      g.tracker.Stats(),
	}
	if g.stream != nil {
		s.ActiveTopic = g.stream.Topic()
	}
	return s
}

// Close shuts down both channels.
func (g *Gateway) Close() error {
	var first error
	if g.stream != nil {
		if err := g.stream.Close(); err != nil {
			first = err
		}
	}
	if g.batch != nil {
		if err := g.batch.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func chunkID(i int) string {
	return fmt.Sprintf("p%d", i)
}

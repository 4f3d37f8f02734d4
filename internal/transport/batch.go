package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/classify"
)

const (
	batchTemperature     = 0.3
	defaultBatchModel    = openai.ChatModelGPT4o
	chunkResponseTokens  = 60
	retryBaseDelay       = 2 * time.Second
	maxCompletionRetries = 2
)

// CompletionClient is the REST completion call the batch channel depends
// on. Tests substitute a fake; production wires the OpenAI SDK.
type CompletionClient interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

type openAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient builds a CompletionClient over the OpenAI chat API.
func NewOpenAIClient(apiKey, model string) CompletionClient {
	if model == "" {
		model = defaultBatchModel
	}
	return &openAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *openAIClient) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(batchTemperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// BatchChannel classifies paragraphs over stateless REST completions. Group
// requests are bounded by a counting semaphore so a large document cannot
// open unlimited concurrent calls.
type BatchChannel struct {
	client  CompletionClient
	planner classify.PlannerConfig
	slots   chan struct{}
	logger  *zap.Logger
}

// NewBatchChannel creates the channel. maxParallel bounds concurrent group
// requests; values below one fall back to two.
func NewBatchChannel(client CompletionClient, planner classify.PlannerConfig, maxParallel int, logger *zap.Logger) *BatchChannel {
	if maxParallel < 1 {
		maxParallel = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchChannel{
		client:  client,
		planner: planner,
		slots:   make(chan struct{}, maxParallel),
		logger:  logger,
	}
}

func (b *BatchChannel) Name() string { return "batch" }

// Planner returns the token accounting this channel was configured with.
func (b *BatchChannel) Planner() classify.PlannerConfig { return b.planner }

func (b *BatchChannel) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *BatchChannel) release() { <-b.slots }

// complete calls the client, retrying transient failures with a fixed
// backoff. Rate limits and server errors are worth one or two retries;
// anything else fails immediately.
func (b *BatchChannel) complete(ctx context.Context, op, system, user string, maxTokens int) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxCompletionRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(attempt)
			b.logger.Debug("batch retry",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		text, err := b.client.Complete(ctx, system, user, maxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
		kind := Classify(op, err).Kind
		if kind != KindRateLimited && kind != KindModelUnavailable {
			break
		}
	}
	return "", Classify(op, lastErr)
}

// ClassifyChunk classifies one paragraph with a self-contained prompt.
func (b *BatchChannel) ClassifyChunk(ctx context.Context, req ChunkRequest) (string, error) {
	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.release()

	prompt := classify.BuildChunkPrompt(req.Text, req.Topic)
	text, err := b.complete(ctx, "batch.chunk", classify.SystemPrompt, prompt, chunkResponseTokens)
	if err != nil {
		return "", err
	}
	return classify.ParseChunkResponse(text), nil
}

// ClassifyGroup classifies a group of paragraphs in one request, returning
// one label per input in order. Paragraphs the model skipped or answered
// unusably carry the parsing_error sentinel.
func (b *BatchChannel) ClassifyGroup(ctx context.Context, texts []string, topic string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	prompt := classify.BuildPrompt(texts, topic)
	maxTokens := classify.MaxResponseTokens(len(texts), b.planner)
	op := fmt.Sprintf("batch.group[%d]", len(texts))
	text, err := b.complete(ctx, op, classify.SystemPrompt, prompt, maxTokens)
	if err != nil {
		return nil, err
	}
	labels := classify.ParseGroupResponse(text, len(texts))
	return labels, nil
}

// Close releases nothing; REST connections are pooled by the HTTP client.
func (b *BatchChannel) Close() error { return nil }

// Package transport carries classification requests to the model service
// over two channels: a persistent WebSocket stream and a REST batch client.
// Channels return discourse-role labels; deciding which channel to use and
// how to recover from failures belongs to the gateway.
package transport

import "context"

// ChunkRequest is a single-paragraph classification request.
type ChunkRequest struct {
	ID    string
	Text  string
	Topic string
}

// Channel classifies one paragraph at a time.
type Channel interface {
	// Name identifies the channel in logs and stats.
	Name() string
	// ClassifyChunk returns the discourse-role label for one paragraph.
	ClassifyChunk(ctx context.Context, req ChunkRequest) (string, error)
	Close() error
}

// GroupChannel additionally classifies a batch of paragraphs in one
// request, returning one label per input in order.
type GroupChannel interface {
	Channel
	ClassifyGroup(ctx context.Context, texts []string, topic string) ([]string, error)
}

// Package session persists analysis snapshots between requests. Three
// backends share one interface: Redis for deployments with shared state,
// SQLite for single-node persistence, and an in-process map as the
// fallback.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/kaiseki/internal/models"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is the session lifetime when the config does not set one.
const DefaultTTL = time.Hour

// Store persists session snapshots with a TTL.
type Store interface {
	Save(ctx context.Context, snapshot *models.Snapshot) error
	Get(ctx context.Context, sessionID string) (*models.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// Key builds the storage key for a session id. All backends use the same
// namespace so a backend switch keeps keys recognizable.
func Key(sessionID string) string {
	return "analysis_session:" + sessionID
}

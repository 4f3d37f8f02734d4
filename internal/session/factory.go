package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Options selects and configures a session backend.
type Options struct {
	Backend      string
	RedisURL     string
	DatabasePath string
	TTL          time.Duration
}

// New builds the configured store. An unreachable Redis degrades to the
// in-process store with a warning rather than failing startup; a broken
// SQLite path is a hard error since it signals misconfiguration.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Backend {
	case BackendRedis:
		store, err := NewRedisStore(ctx, opts.RedisURL, opts.TTL)
		if err != nil {
			logger.Warn("redis unavailable, falling back to in-process session store",
				zap.String("url", opts.RedisURL),
				zap.Error(err),
			)
			return NewMemoryStore(opts.TTL), nil
		}
		logger.Info("session store: redis", zap.String("url", opts.RedisURL))
		return store, nil
	case BackendSQLite:
		store, err := NewSQLiteStore(opts.DatabasePath, opts.TTL)
		if err != nil {
			return nil, fmt.Errorf("sqlite session store: %w", err)
		}
		logger.Info("session store: sqlite", zap.String("path", opts.DatabasePath))
		return store, nil
	case BackendMemory, "":
		logger.Info("session store: in-process memory")
		return NewMemoryStore(opts.TTL), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
}

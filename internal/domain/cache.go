package domain

import (
	"context"
	"time"
)

// Cache holds derived views of the current batch (summary, dashboard metrics).
// Entries are invalidated wholesale whenever a new batch becomes current.
type Cache interface {
	// Get retrieves a value. Returns nil, nil if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// Cache keys for current-batch views.
const (
	CacheKeySummary = "summary:current"
	CacheKeyMetrics = "metrics:current"
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `envconfig:"TYPE" default:"memory"`

	LocalMaxSize int           `envconfig:"LOCAL_MAX_SIZE" default:"1000"`
	LocalTTL     time.Duration `envconfig:"LOCAL_TTL" default:"5m"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`

	// EnableTwoPhase checks the local LRU before Redis.
	EnableTwoPhase bool `envconfig:"TWO_PHASE"`

	// TTL applies to summary and metrics entries.
	TTL time.Duration `envconfig:"TTL" default:"1h"`
}

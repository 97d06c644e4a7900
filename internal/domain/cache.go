package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (single node) + Redis
// (distributed). The cache fronts explanation reads only; the record
// store stays the source of truth.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetExplanation retrieves a cached explanation record.
	// Returns nil, nil on a cache miss.
	GetExplanation(ctx context.Context, alertID string) (*ExplanationRecord, error)

	// SetExplanation caches an explanation record after scoring.
	SetExplanation(ctx context.Context, rec *ExplanationRecord, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (single node)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (distributed)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}

package domain

import (
	"context"
	"time"
)

// RecordStore defines the interface for explanation and feedback
// persistence. Explanations are keyed by alert ID and written whole:
// a second write for the same ID replaces the record. Feedback is
// append-only.
type RecordStore interface {
	// PutExplanation writes a complete explanation record, replacing
	// any existing record for the same alert ID.
	PutExplanation(ctx context.Context, rec *ExplanationRecord) error

	// GetExplanation returns the current record for an alert ID, or
	// ErrNotFound.
	GetExplanation(ctx context.Context, alertID string) (*ExplanationRecord, error)

	// PutFeedback appends a feedback record.
	PutFeedback(ctx context.Context, rec *FeedbackRecord) error

	// ListFeedback returns all feedback for an alert ID in submission
	// order. An empty slice is not an error.
	ListFeedback(ctx context.Context, alertID string) ([]*FeedbackRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoreConfig holds configuration for record store initialization.
type StoreConfig struct {
	// Backend selects the store family: "sql" (embedded or server
	// database) or "index" (remote search index over HTTP).
	Backend string

	// SQL backend: driver is "sqlite" or "postgres"
	Driver     string
	SQLitePath string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Index backend
	IndexURL         string
	IndexUsername    string
	IndexPassword    string
	IndexInsecureTLS bool
	ExplainIndex     string
	FeedbackIndex    string
	RequestTimeout   time.Duration
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// SQLStore implements domain.RecordStore using database/sql.
// Works with both SQLite and PostgreSQL drivers. The full explanation
// record is stored as JSON alongside the columns queries filter on,
// so the wire shape and the stored shape never drift apart.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens the configured database and runs migrations.
func NewSQLStore(cfg domain.StoreConfig) (*SQLStore, error) {
	var db *sql.DB
	var err error

	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	switch driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &SQLStore{db: db, driver: driver}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrations: %v", domain.ErrStoreUnavailable, err)
	}

	return s, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// PutExplanation writes a complete record, replacing any previous
// record for the same alert ID.
func (s *SQLStore) PutExplanation(ctx context.Context, rec *domain.ExplanationRecord) error {
	if rec == nil || rec.AlertID == "" {
		return fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO explanations (
			alert_id, timestamp, score, decision,
			model_version, feature_map_version, criticality_tag, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			score = excluded.score,
			decision = excluded.decision,
			model_version = excluded.model_version,
			feature_map_version = excluded.feature_map_version,
			criticality_tag = excluded.criticality_tag,
			record = excluded.record
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		rec.AlertID, rec.Timestamp, rec.Score, rec.Decision,
		rec.ModelVersion, rec.FeatureMapVersion, rec.Criticality.Tag, string(body),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetExplanation retrieves the current record for an alert ID.
func (s *SQLStore) GetExplanation(ctx context.Context, alertID string) (*domain.ExplanationRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}

	query := `SELECT record FROM explanations WHERE alert_id = ?`

	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(query), alertID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	var rec domain.ExplanationRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("corrupt record for %s: %w", alertID, err)
	}
	return &rec, nil
}

// PutFeedback appends a feedback record. An empty ID gets a fresh
// UUID.
func (s *SQLStore) PutFeedback(ctx context.Context, rec *domain.FeedbackRecord) error {
	if rec == nil || rec.AlertID == "" {
		return fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}

	overridden := 0
	if rec.Overridden {
		overridden = 1
	}

	query := `
		INSERT INTO feedback (
			id, alert_id, label, label_source, trust_score,
			overridden, decision_time_ms, comment, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rec.ID, rec.AlertID, rec.Label, rec.LabelSource, rec.TrustScore,
		overridden, rec.DecisionTimeMs, rec.Comment, rec.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ListFeedback returns all feedback for an alert in submission order.
func (s *SQLStore) ListFeedback(ctx context.Context, alertID string) ([]*domain.FeedbackRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, alert_id, label, label_source, trust_score,
			   overridden, decision_time_ms, comment, submitted_at
		FROM feedback
		WHERE alert_id = ?
		ORDER BY submitted_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), alertID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []*domain.FeedbackRecord
	for rows.Next() {
		var rec domain.FeedbackRecord
		var overridden int
		var comment sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.AlertID, &rec.Label, &rec.LabelSource, &rec.TrustScore,
			&overridden, &rec.DecisionTimeMs, &comment, &rec.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		rec.Overridden = overridden == 1
		rec.Comment = comment.String
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

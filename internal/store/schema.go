package store

// Schema definitions for the Kestrel record store.
// Compatible with both SQLite and PostgreSQL.

const schemaExplanations = `
CREATE TABLE IF NOT EXISTS explanations (
    alert_id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    score REAL NOT NULL,
    decision TEXT NOT NULL,
    model_version TEXT NOT NULL,
    feature_map_version INTEGER NOT NULL,
    criticality_tag TEXT NOT NULL,
    record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_explanations_decision ON explanations(decision);
CREATE INDEX IF NOT EXISTS idx_explanations_timestamp ON explanations(timestamp);
CREATE INDEX IF NOT EXISTS idx_explanations_tag ON explanations(criticality_tag);
`

const schemaFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    id TEXT PRIMARY KEY,
    alert_id TEXT NOT NULL,
    label INTEGER NOT NULL,
    label_source TEXT NOT NULL,
    trust_score INTEGER NOT NULL,
    overridden INTEGER NOT NULL DEFAULT 0,
    decision_time_ms INTEGER NOT NULL DEFAULT 0,
    comment TEXT,
    submitted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_alert ON feedback(alert_id);
CREATE INDEX IF NOT EXISTS idx_feedback_submitted ON feedback(alert_id, submitted_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaExplanations,
		schemaFeedback,
	}
}

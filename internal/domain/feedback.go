package domain

import (
	"time"
)

// Label sources for feedback records.
const (
	LabelSourceAnalyst = "analyst"
	LabelSourceRule    = "rule"
)

// Trust score bounds. Out-of-range submissions are clamped, never
// rejected.
const (
	TrustScoreMin     = 1
	TrustScoreMax     = 5
	TrustScoreDefault = 3
)

// FeedbackRequest is the API request payload for analyst feedback.
type FeedbackRequest struct {
	AlertID        string `json:"alertId" validate:"required"`
	Label          int    `json:"label"` // 0 = benign, 1 = malicious
	LabelSource    string `json:"labelSource,omitempty"`
	TrustScore     int    `json:"trustScore,omitempty"`
	Overridden     bool   `json:"overridden,omitempty"`
	DecisionTimeMs int64  `json:"decisionTimeMs,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

// FeedbackRecord is one accepted feedback submission. Records are
// append-only: resubmitting for the same alert adds a new record
// rather than replacing the old one, so the label history survives.
type FeedbackRecord struct {
	ID             string    `json:"id"`
	AlertID        string    `json:"alertId"`
	Label          int       `json:"label"`
	LabelSource    string    `json:"labelSource"`
	TrustScore     int       `json:"trustScore"`
	Overridden     bool      `json:"overridden"`
	DecisionTimeMs int64     `json:"decisionTimeMs"`
	Comment        string    `json:"comment,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

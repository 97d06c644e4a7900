package domain

import (
	"time"
)

// Decision outcomes for a scored alert.
const (
	DecisionEscalate = "escalate"
	DecisionDismiss  = "dismiss"
)

// FeatureContribution is one entry of the ranked attribution list.
// Attribution is signed: positive values push the score toward
// escalation, negative toward dismissal. Rank is 1-based.
type FeatureContribution struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Attribution float64 `json:"attribution"`
	Rank        int     `json:"rank"`
}

// DecisiveEvent is a human-readable pointer into the alert evidence
// that supports the decision. Selection is heuristic, not causal, and
// the record says so via ExplanationRecord.EventRankingHeuristic.
type DecisiveEvent struct {
	Timestamp string  `json:"timestamp"`
	Kind      string  `json:"kind"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// ClassProbabilities carries both class probabilities after
// calibration. They sum to 1.
type ClassProbabilities struct {
	Benign    float64 `json:"benign"`
	Malicious float64 `json:"malicious"`
}

// Criticality is the policy overlay applied on top of the calibrated
// score: a severity band, an optionally boosted score, and the analyst
// guidance that goes with the band.
type Criticality struct {
	Tag             string   `json:"tag"` // "critical", "high", "medium", "low"
	Score           float64  `json:"score"`
	Reasons         []string `json:"reasons"`
	TriageText      string   `json:"triageText,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// PipelineHealth summarizes how well the alert matched the feature
// map. Low coverage means the score leaned heavily on defaults.
type PipelineHealth struct {
	FeatureCoveragePct float64  `json:"featureCoveragePct"`
	MissingFeatures    []string `json:"missingFeatures,omitempty"`
	CoercedFeatures    []string `json:"coercedFeatures,omitempty"`
	PipelineOK         bool     `json:"pipelineOk"`
}

// ExplanationRecord is the complete, self-contained output of scoring
// one alert: score, decision, attribution, evidence pointers and the
// versions that produced them. Records are written whole; a re-score
// of the same alert ID replaces the previous record entirely.
type ExplanationRecord struct {
	AlertID   string    `json:"alertId"`
	Timestamp time.Time `json:"timestamp"`

	Score     float64            `json:"score"`    // calibrated P(malicious)
	RawScore  float64            `json:"rawScore"` // uncalibrated model output
	Decision  string             `json:"decision"` // "escalate" or "dismiss"
	Threshold float64            `json:"threshold"`
	ClassProb ClassProbabilities `json:"classProb"`

	// Baseline is the attribution reference point; contributions are
	// deviations from it and sum approximately to Score - Baseline.
	Baseline    float64               `json:"baseline"`
	TopFeatures []FeatureContribution `json:"topFeatures"`

	DecisiveEvents        []DecisiveEvent `json:"decisiveEvents,omitempty"`
	EventRankingHeuristic bool            `json:"eventRankingHeuristic"`

	ModelVersion      string `json:"modelVersion"`
	FeatureMapVersion int    `json:"featureMapVersion"`
	ExplainerStrategy string `json:"explainerStrategy"`

	Criticality Criticality    `json:"criticality"`
	Health      PipelineHealth `json:"health"`

	// RawHash fingerprints the raw alert for audit correlation.
	RawHash string `json:"rawHash"`

	IngestedAt time.Time `json:"ingestedAt"`
}

// Package feedback accepts analyst judgments and persists them for
// future retraining.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrel-soc/kestrel/internal/domain"
	"github.com/kestrel-soc/kestrel/internal/metrics"
)

// Pipeline validates and stores feedback records. Records are
// append-only; a resubmission for the same alert adds a new row.
type Pipeline struct {
	store domain.RecordStore
	bus   domain.EventBus
}

// NewPipeline creates a feedback pipeline. The bus is optional; when
// nil, accepted feedback is stored but not announced.
func NewPipeline(store domain.RecordStore, bus domain.EventBus) *Pipeline {
	return &Pipeline{store: store, bus: bus}
}

// Submit validates a feedback request and appends it to the record
// store. Feedback referencing an alert with no stored explanation is
// still accepted; out-of-order or lost explanation writes must not
// lose the analyst's label.
func (p *Pipeline) Submit(ctx context.Context, req domain.FeedbackRequest) (*domain.FeedbackRecord, error) {
	if req.AlertID == "" {
		return nil, fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}
	if req.Label != 0 && req.Label != 1 {
		return nil, fmt.Errorf("%w: label must be 0 or 1, got %d", domain.ErrInvalidInput, req.Label)
	}
	if req.DecisionTimeMs < 0 {
		return nil, fmt.Errorf("%w: decision time must be non-negative, got %d", domain.ErrInvalidInput, req.DecisionTimeMs)
	}

	source := req.LabelSource
	if source == "" {
		source = domain.LabelSourceAnalyst
	}
	if source != domain.LabelSourceAnalyst && source != domain.LabelSourceRule {
		return nil, fmt.Errorf("%w: unknown label source %q", domain.ErrInvalidInput, req.LabelSource)
	}

	trust := req.TrustScore
	switch {
	case trust == 0:
		trust = domain.TrustScoreDefault
	case trust < domain.TrustScoreMin:
		trust = domain.TrustScoreMin
	case trust > domain.TrustScoreMax:
		trust = domain.TrustScoreMax
	}

	p.checkConsistency(ctx, req.AlertID)

	rec := &domain.FeedbackRecord{
		AlertID:        req.AlertID,
		Label:          req.Label,
		LabelSource:    source,
		TrustScore:     trust,
		Overridden:     req.Overridden,
		DecisionTimeMs: req.DecisionTimeMs,
		Comment:        req.Comment,
		SubmittedAt:    time.Now().UTC(),
	}

	if err := p.store.PutFeedback(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			metrics.StoreErrors.WithLabelValues("put_feedback").Inc()
		}
		return nil, err
	}

	metrics.FeedbackAccepted.WithLabelValues(source).Inc()
	p.publish(ctx, rec)

	return rec, nil
}

// checkConsistency warns when feedback arrives for an alert with no
// stored explanation. The submission is accepted either way.
func (p *Pipeline) checkConsistency(ctx context.Context, alertID string) {
	_, err := p.store.GetExplanation(ctx, alertID)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		metrics.ConsistencyWarnings.Inc()
		slog.Warn("feedback references unknown alert",
			"alert_id", alertID,
		)
		return
	}
	slog.Warn("consistency check skipped, explanation lookup failed",
		"alert_id", alertID,
		"error", err,
	)
}

func (p *Pipeline) publish(ctx context.Context, rec *domain.FeedbackRecord) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicFeedbackReceived, payload); err != nil {
		slog.Warn("failed to publish feedback event",
			"alert_id", rec.AlertID,
			"error", err,
		)
	}
}

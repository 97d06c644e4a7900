// Package triage runs the alert-to-explanation pipeline:
// canonicalization, vectorization, scoring, attribution, policy
// overlay and persistence.
package triage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrel-soc/kestrel/internal/canonical"
	"github.com/kestrel-soc/kestrel/internal/domain"
	"github.com/kestrel-soc/kestrel/internal/explain"
	"github.com/kestrel-soc/kestrel/internal/metrics"
	"github.com/kestrel-soc/kestrel/internal/model"
	"github.com/kestrel-soc/kestrel/internal/policy"
	"github.com/kestrel-soc/kestrel/internal/schema"
	"github.com/kestrel-soc/kestrel/internal/vector"
)

// Config assembles a Processor. Store and Scorer, FeatureMap, Policy
// are required; Cache and Bus are optional.
type Config struct {
	Scorer     *model.Scorer
	FeatureMap *schema.Map
	Canon      *canonical.Canonicalizer
	Strategy   explain.Strategy
	Events     *explain.EventRanker
	Policy     *policy.Policy
	Store      domain.RecordStore
	Cache      domain.Cache
	Bus        domain.EventBus

	// TopK bounds the ranked attribution list. <= 0 keeps five.
	TopK int

	// CacheTTL bounds how long explanation records live in cache.
	// <= 0 uses one hour.
	CacheTTL time.Duration
}

// Processor is the shared pipeline context: model, feature map,
// explainer and policy, wired once at startup and read-only
// afterwards. It is safe for concurrent use by HTTP handlers and
// async workers.
type Processor struct {
	scorer   *model.Scorer
	fm       *schema.Map
	canon    *canonical.Canonicalizer
	strategy explain.Strategy
	events   *explain.EventRanker
	policy   *policy.Policy
	store    domain.RecordStore
	cache    domain.Cache
	bus      domain.EventBus
	topK     int
	cacheTTL time.Duration
}

// NewProcessor validates the configuration and builds the pipeline.
// The feature map length must match the model's expected input
// length; a mismatch here invalidates every score the process would
// produce, so it is fatal at construction.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Scorer == nil {
		return nil, domain.ErrModelUnavailable
	}
	if cfg.FeatureMap == nil {
		return nil, &domain.SchemaError{Reason: "feature map is required"}
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: record store is required", domain.ErrInvalidInput)
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("%w: policy is required", domain.ErrInvalidInput)
	}

	if want := cfg.Scorer.Classifier().NumFeatures(); cfg.FeatureMap.Len() != want {
		return nil, &domain.DimensionError{Got: cfg.FeatureMap.Len(), Want: want}
	}

	canon := cfg.Canon
	if canon == nil {
		canon = canonical.New()
	}
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = &explain.TreeAttribution{}
	}
	events := cfg.Events
	if events == nil {
		events = explain.NewEventRanker(5)
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Processor{
		scorer:   cfg.Scorer,
		fm:       cfg.FeatureMap,
		canon:    canon,
		strategy: strategy,
		events:   events,
		policy:   cfg.Policy,
		store:    cfg.Store,
		cache:    cfg.Cache,
		bus:      cfg.Bus,
		topK:     topK,
		cacheTTL: ttl,
	}, nil
}

// Process scores one alert and persists the resulting explanation
// record. Scoring failures (dimension mismatch, missing model)
// propagate without writing anything; attribution failures degrade to
// an empty feature list because a score without attribution is still
// actionable.
func (p *Processor) Process(ctx context.Context, alertID string, alert domain.Alert) (*domain.ExplanationRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}
	if alert == nil {
		return nil, fmt.Errorf("%w: alert payload is required", domain.ErrInvalidInput)
	}

	started := time.Now()

	canon := p.canon.Canonicalize(alert)
	x, audit := vector.Vectorize(canon, p.fm)

	for _, c := range audit.Coercions {
		metrics.CoercionWarnings.Inc()
		slog.Warn("feature coerced to default",
			"alert_id", alertID,
			"feature", c.Feature,
			"reason", c.Reason,
		)
	}

	res, err := p.scorer.Score(x)
	if err != nil {
		return nil, err
	}

	contribs, baseline, err := p.strategy.Attribute(p.scorer.Classifier(), x, p.fm.Names())
	if err != nil {
		metrics.AttributionFailures.Inc()
		slog.Warn("attribution failed, recording score without feature ranking",
			"alert_id", alertID,
			"strategy", p.strategy.Name(),
			"error", err,
		)
		contribs, baseline = nil, 0
	}

	top := explain.TopK(contribs, p.topK)
	ranked := make([]domain.FeatureContribution, 0, len(top))
	for i, c := range top {
		ranked = append(ranked, domain.FeatureContribution{
			Name:        c.Name,
			Value:       c.Value,
			Attribution: c.Attribution,
			Rank:        i + 1,
		})
	}

	crit := p.policy.Evaluate(res.Calibrated, canon)

	rec := &domain.ExplanationRecord{
		AlertID:   alertID,
		Timestamp: started.UTC(),
		Score:     res.Calibrated,
		RawScore:  res.Raw,
		Decision:  res.Decision,
		Threshold: p.scorer.Threshold(),
		ClassProb: domain.ClassProbabilities{
			Benign:    1 - res.Calibrated,
			Malicious: res.Calibrated,
		},
		Baseline:              baseline,
		TopFeatures:           ranked,
		DecisiveEvents:        p.events.Rank(alert),
		EventRankingHeuristic: true,
		ModelVersion:          p.scorer.Classifier().Version(),
		FeatureMapVersion:     p.fm.Version(),
		ExplainerStrategy:     p.strategy.Name(),
		Criticality:           crit,
		Health:                p.policy.Health(audit.CoveragePct(), audit.Missing(), audit.Coerced()),
		RawHash:               hashAlert(alert),
		IngestedAt:            time.Now().UTC(),
	}

	if err := p.store.PutExplanation(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			metrics.StoreErrors.WithLabelValues("put_explanation").Inc()
		}
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.SetExplanation(ctx, rec, p.cacheTTL); err != nil {
			slog.Warn("failed to cache explanation",
				"alert_id", alertID,
				"error", err,
			)
		}
	}

	p.announce(ctx, rec)

	metrics.AlertsScored.WithLabelValues(rec.Decision).Inc()
	metrics.ScoreLatency.Observe(time.Since(started).Seconds())

	return rec, nil
}

// Explanation returns a stored explanation record, reading through
// the cache when one is configured.
func (p *Processor) Explanation(ctx context.Context, alertID string) (*domain.ExplanationRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}

	if p.cache != nil {
		if rec, err := p.cache.GetExplanation(ctx, alertID); err == nil && rec != nil {
			return rec, nil
		}
	}

	rec, err := p.store.GetExplanation(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		_ = p.cache.SetExplanation(ctx, rec, p.cacheTTL)
	}

	return rec, nil
}

// FeatureMap exposes the loaded feature schema for the read-only API.
func (p *Processor) FeatureMap() *schema.Map {
	return p.fm
}

// Ping verifies the record store is reachable.
func (p *Processor) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

func (p *Processor) announce(ctx context.Context, rec *domain.ExplanationRecord) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}

	if err := p.bus.Publish(ctx, domain.TopicAlertScored, payload); err != nil {
		slog.Warn("failed to publish scored event",
			"alert_id", rec.AlertID,
			"error", err,
		)
	}

	if rec.Decision == domain.DecisionEscalate {
		if err := p.bus.Publish(ctx, domain.TopicAlertEscalated, payload); err != nil {
			slog.Warn("failed to publish escalated event",
				"alert_id", rec.AlertID,
				"error", err,
			)
		}
	}
}

func hashAlert(alert domain.Alert) string {
	data, err := json.Marshal(alert)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

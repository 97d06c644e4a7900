// Package policy applies the criticality overlay on top of the
// calibrated score: threshold bands pick a severity tag, CEL override
// rules bump or escalate it based on the canonical mapping, and the
// tag selects triage text and recommendations for the analyst.
package policy

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"gopkg.in/yaml.v3"

	"github.com/kestrel-soc/kestrel/internal/canonical"
	"github.com/kestrel-soc/kestrel/internal/domain"
)

// Default threshold bands, used when the policy file leaves them out.
const (
	defaultCritical = 0.85
	defaultHigh     = 0.70
	defaultMedium   = 0.50
	defaultLow      = 0.30

	defaultDecisionThreshold = 0.5
	defaultMinCoveragePct    = 60.0

	maxReasons         = 6
	maxRecommendations = 6
)

// RuleSpec is one override rule. When is a CEL expression over the
// canonical mapping (variable "canon") and the calibrated score
// (variable "score") that must evaluate to bool.
type RuleSpec struct {
	Name            string   `yaml:"name"`
	When            string   `yaml:"when"`
	Reason          string   `yaml:"reason"`
	Bump            float64  `yaml:"bump"`
	EscalateTo      string   `yaml:"escalate_to"`
	Recommendations []string `yaml:"recommendations"`
}

// Config is the on-disk policy shape.
type Config struct {
	DecisionThreshold float64             `yaml:"decision_threshold"`
	Thresholds        map[string]float64  `yaml:"thresholds"`
	TriageText        map[string]string   `yaml:"triage_text"`
	Recommendations   map[string][]string `yaml:"recommendations"`
	Rules             []RuleSpec          `yaml:"rules"`
	MinCoveragePct    float64             `yaml:"min_coverage_pct"`
}

type compiledRule struct {
	spec    RuleSpec
	program cel.Program
}

// Policy evaluates criticality for scored alerts. Safe for concurrent
// use; rules are compiled once at construction.
type Policy struct {
	mu    sync.RWMutex
	cfg   Config
	rules []compiledRule
}

// Load reads and compiles a policy file. A missing file yields the
// default policy with no override rules.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return New(cfg)
}

// New compiles a policy configuration.
func New(cfg Config) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("canon", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	p := &Policy{cfg: cfg}
	for _, spec := range cfg.Rules {
		ast, issues := env.Compile(spec.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile rule %q: %w", spec.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q: expression must return bool, got %s", spec.Name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for rule %q: %w", spec.Name, err)
		}
		p.rules = append(p.rules, compiledRule{spec: spec, program: program})
	}
	return p, nil
}

// DecisionThreshold returns the escalate/dismiss cut point.
func (p *Policy) DecisionThreshold() float64 {
	if p.cfg.DecisionThreshold > 0 {
		return p.cfg.DecisionThreshold
	}
	return defaultDecisionThreshold
}

// Evaluate computes the criticality block for a calibrated score and
// canonical mapping. Override rules can only raise the bumped tag,
// never lower what the boosted score earns.
func (p *Policy) Evaluate(score float64, canon canonical.Mapping) domain.Criticality {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tag := p.tagFor(score)

	bump := 0.0
	var reasons []string
	var recs []string

	activation := map[string]any{
		"canon": map[string]any(canon),
		"score": score,
	}
	for _, r := range p.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			// Missing canon keys make CEL error out; treat as no match.
			continue
		}
		hit, ok := out.(types.Bool)
		if !ok || !bool(hit) {
			continue
		}
		if r.spec.Reason != "" {
			reasons = append(reasons, r.spec.Reason)
		}
		bump += r.spec.Bump
		recs = append(recs, r.spec.Recommendations...)
		if r.spec.EscalateTo != "" {
			tag = r.spec.EscalateTo
		}
	}

	boosted := clamp01(score + bump)
	if boosted >= p.threshold("critical", defaultCritical) {
		tag = "critical"
	} else if boosted >= p.threshold("high", defaultHigh) && tag != "critical" {
		tag = "high"
	}

	defaultReason := fmt.Sprintf("score %.2f", boosted)
	if th, ok := p.thresholdFor(tag); ok {
		defaultReason = fmt.Sprintf("score %.2f at or above %s threshold %.2f", boosted, tag, th)
	}
	reasons = append([]string{defaultReason}, reasons...)

	recs = dedupe(append(recs, p.cfg.Recommendations[tag]...))

	return domain.Criticality{
		Tag:             tag,
		Score:           boosted,
		Reasons:         capList(reasons, maxReasons),
		TriageText:      p.cfg.TriageText[tag],
		Recommendations: capList(recs, maxRecommendations),
	}
}

// Health builds the pipeline health block from vectorization audit
// data. The pipeline counts as OK when feature coverage clears the
// configured floor.
func (p *Policy) Health(coveragePct float64, missing, coerced []string) domain.PipelineHealth {
	floor := p.cfg.MinCoveragePct
	if floor <= 0 {
		floor = defaultMinCoveragePct
	}
	if len(missing) > 10 {
		missing = missing[:10]
	}
	return domain.PipelineHealth{
		FeatureCoveragePct: coveragePct,
		MissingFeatures:    missing,
		CoercedFeatures:    coerced,
		PipelineOK:         coveragePct >= floor,
	}
}

func (p *Policy) tagFor(score float64) string {
	switch {
	case score >= p.threshold("critical", defaultCritical):
		return "critical"
	case score >= p.threshold("high", defaultHigh):
		return "high"
	case score >= p.threshold("medium", defaultMedium):
		return "medium"
	case score >= p.threshold("low", defaultLow):
		return "low"
	default:
		return "info"
	}
}

func (p *Policy) threshold(tag string, def float64) float64 {
	if v, ok := p.cfg.Thresholds[tag]; ok {
		return v
	}
	return def
}

func (p *Policy) thresholdFor(tag string) (float64, bool) {
	switch tag {
	case "critical":
		return p.threshold(tag, defaultCritical), true
	case "high":
		return p.threshold(tag, defaultHigh), true
	case "medium":
		return p.threshold(tag, defaultMedium), true
	case "low":
		return p.threshold(tag, defaultLow), true
	default:
		v, ok := p.cfg.Thresholds[tag]
		return v, ok
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func capList(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

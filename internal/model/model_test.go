package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// stumpForest builds a two-tree ensemble over three features:
// tree 0 splits on feature 0 at 10, tree 1 splits on feature 2 at 5.
func stumpForest() *Forest {
	return &Forest{
		ModelVersion: "test-1",
		NFeatures:    3,
		TreeList: []Tree{
			{Nodes: []Node{
				{Feature: 0, Threshold: 10, Left: 1, Right: 2, Value: 0.5},
				{Feature: -1, Value: 0.2},
				{Feature: -1, Value: 0.8},
			}},
			{Nodes: []Node{
				{Feature: 2, Threshold: 5, Left: 1, Right: 2, Value: 0.4},
				{Feature: -1, Value: 0.1},
				{Feature: -1, Value: 0.9},
			}},
		},
	}
}

func TestForestPredict(t *testing.T) {
	f := stumpForest()

	p, err := f.PredictProba([]float64{22, 0, 12})
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	// tree 0 → 0.8 (22 > 10), tree 1 → 0.9 (12 > 5)
	if math.Abs(p-0.85) > 1e-9 {
		t.Errorf("p = %v, want 0.85", p)
	}

	p, err = f.PredictProba([]float64{0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p-0.15) > 1e-9 {
		t.Errorf("p = %v, want 0.15", p)
	}
}

func TestForestDimensionMismatch(t *testing.T) {
	f := stumpForest()
	_, err := f.PredictProba([]float64{1, 2})
	if err == nil {
		t.Fatal("expected dimension error")
	}
	var de *domain.DimensionError
	if !errors.As(err, &de) {
		t.Fatalf("expected DimensionError, got %T", err)
	}
	if de.Got != 2 || de.Want != 3 {
		t.Errorf("got=%d want=%d, expected 2 and 3", de.Got, de.Want)
	}
}

func TestForestBaseline(t *testing.T) {
	f := stumpForest()
	if b := f.Baseline(); math.Abs(b-0.45) > 1e-9 {
		t.Errorf("baseline = %v, want 0.45", b)
	}
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	content := `{
	  "version": "rf-2024.10",
	  "nFeatures": 2,
	  "trees": [
	    {"nodes": [
	      {"feature": 1, "threshold": 3, "left": 1, "right": 2, "value": 0.5},
	      {"feature": -1, "value": 0.1},
	      {"feature": -1, "value": 0.9}
	    ]}
	  ],
	  "calibration": [{"x": 0.1, "y": 0.05}, {"x": 0.9, "y": 0.75}]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Version() != "rf-2024.10" || f.NumFeatures() != 2 {
		t.Errorf("unexpected artifact: %s / %d features", f.Version(), f.NumFeatures())
	}
	if len(f.Calibration) != 2 {
		t.Errorf("expected 2 calibration knots, got %d", len(f.Calibration))
	}
}

func TestLoadRejectsBadArtifacts(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no trees", `{"version": "v", "nFeatures": 2, "trees": []}`},
		{"zero features", `{"version": "v", "nFeatures": 0, "trees": [{"nodes": [{"feature": -1, "value": 0.5}]}]}`},
		{"feature out of range", `{"version": "v", "nFeatures": 1, "trees": [{"nodes": [{"feature": 3, "threshold": 1, "left": 1, "right": 2, "value": 0.5}, {"feature": -1}, {"feature": -1}]}]}`},
		{"not json", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, domain.ErrModelUnavailable) {
				t.Errorf("expected ErrModelUnavailable, got %v", err)
			}
		})
	}
}

func TestCalibratorInterpolation(t *testing.T) {
	cal, err := NewCalibrator([]CalibrationPoint{
		{X: 0.0, Y: 0.0},
		{X: 0.8, Y: 0.6},
		{X: 1.0, Y: 0.9},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		raw, want float64
	}{
		{0.0, 0.0},
		{0.4, 0.3},  // midpoint of first segment
		{0.9, 0.75}, // midpoint of second segment
		{1.0, 0.9},
		{-0.5, 0.0}, // clamps to edge knots
		{1.5, 0.9},
	}
	for _, tt := range tests {
		if got := cal.Apply(tt.raw); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Apply(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCalibratorIdentityAndOrdering(t *testing.T) {
	cal, err := NewCalibrator(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := cal.Apply(0.42); got != 0.42 {
		t.Errorf("identity Apply = %v", got)
	}
	if got := cal.Apply(1.7); got != 1 {
		t.Errorf("identity should clamp to 1, got %v", got)
	}

	// Calibration must preserve ordering of raw scores.
	cal, err = NewCalibrator([]CalibrationPoint{{X: 0, Y: 0.1}, {X: 0.5, Y: 0.5}, {X: 1, Y: 0.8}})
	if err != nil {
		t.Fatal(err)
	}
	prev := -1.0
	for raw := 0.0; raw <= 1.0; raw += 0.05 {
		got := cal.Apply(raw)
		if got < prev {
			t.Fatalf("calibration not monotone at raw=%v", raw)
		}
		prev = got
	}
}

func TestCalibratorRejectsNonMonotone(t *testing.T) {
	if _, err := NewCalibrator([]CalibrationPoint{{X: 0, Y: 0.5}, {X: 1, Y: 0.2}}); err == nil {
		t.Fatal("expected error for decreasing knots")
	}
	if _, err := NewCalibrator([]CalibrationPoint{{X: 0.5, Y: 0.1}, {X: 0.5, Y: 0.2}}); err == nil {
		t.Fatal("expected error for duplicate x")
	}
}

func TestScorerDecision(t *testing.T) {
	f := stumpForest()
	f.Calibration = []CalibrationPoint{
		{X: 0.0, Y: 0.0},
		{X: 0.8, Y: 0.6},
		{X: 1.0, Y: 0.9},
	}
	s, err := NewForestScorer(f, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	// raw 0.85 → calibrated 0.675 → escalate at threshold 0.5
	res, err := s.Score([]float64{22, 0, 12})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Raw-0.85) > 1e-9 {
		t.Errorf("raw = %v, want 0.85", res.Raw)
	}
	if math.Abs(res.Calibrated-0.675) > 1e-9 {
		t.Errorf("calibrated = %v, want 0.675", res.Calibrated)
	}
	if res.Decision != domain.DecisionEscalate {
		t.Errorf("decision = %v, want escalate", res.Decision)
	}

	res, err = s.Score([]float64{0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != domain.DecisionDismiss {
		t.Errorf("decision = %v, want dismiss", res.Decision)
	}
}

func TestScorerThresholdBoundary(t *testing.T) {
	f := stumpForest()
	s, err := NewForestScorer(f, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Decide(0.5); got != domain.DecisionEscalate {
		t.Errorf("exactly-at-threshold should escalate, got %v", got)
	}
	if got := s.Decide(0.4999); got != domain.DecisionDismiss {
		t.Errorf("below threshold should dismiss, got %v", got)
	}
}

func TestScorerRejectsBadConfig(t *testing.T) {
	if _, err := NewScorer(nil, nil, 0.5); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("nil classifier: expected ErrModelUnavailable, got %v", err)
	}
	if _, err := NewForestScorer(stumpForest(), 0); err == nil {
		t.Error("expected error for threshold 0")
	}
	if _, err := NewForestScorer(stumpForest(), 1); err == nil {
		t.Error("expected error for threshold 1")
	}
}

package model

import (
	"fmt"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// Result is the outcome of scoring one vector.
type Result struct {
	Raw        float64
	Calibrated float64
	Decision   string
}

// Scorer combines a classifier, its calibration curve and a decision
// threshold. It is safe for concurrent use; the classifier and
// calibrator are read-only after construction.
type Scorer struct {
	clf       Classifier
	cal       *Calibrator
	threshold float64
}

// NewScorer wires a classifier with calibration knots and threshold.
// Threshold must sit in (0,1).
func NewScorer(clf Classifier, points []CalibrationPoint, threshold float64) (*Scorer, error) {
	if clf == nil {
		return nil, domain.ErrModelUnavailable
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("%w: threshold %v outside (0,1)", domain.ErrInvalidInput, threshold)
	}
	cal, err := NewCalibrator(points)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return &Scorer{clf: clf, cal: cal, threshold: threshold}, nil
}

// NewForestScorer wires a loaded forest artifact using its own
// calibration knots. An explicit threshold > 0 overrides the given
// default.
func NewForestScorer(f *Forest, threshold float64) (*Scorer, error) {
	return NewScorer(f, f.Calibration, threshold)
}

// Score runs the classifier and calibration for one vector. The
// decision compares the calibrated probability against the
// threshold; ties round toward escalation.
func (s *Scorer) Score(x []float64) (*Result, error) {
	raw, err := s.clf.PredictProba(x)
	if err != nil {
		return nil, err
	}
	cal := s.cal.Apply(raw)
	return &Result{
		Raw:        raw,
		Calibrated: cal,
		Decision:   s.Decide(cal),
	}, nil
}

// Decide maps a calibrated probability to a decision.
func (s *Scorer) Decide(calibrated float64) string {
	if calibrated >= s.threshold {
		return domain.DecisionEscalate
	}
	return domain.DecisionDismiss
}

// Threshold returns the active decision threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Classifier exposes the wrapped classifier for attribution.
func (s *Scorer) Classifier() Classifier { return s.clf }

// Calibrate applies the calibration curve to a raw score.
func (s *Scorer) Calibrate(raw float64) float64 { return s.cal.Apply(raw) }

package model

import (
	"fmt"
	"sort"
)

// Calibrator maps raw model scores onto calibrated probabilities via
// piecewise-linear interpolation between isotonic regression knots.
// The knot Y values are non-decreasing, so calibration preserves the
// raw score ordering.
type Calibrator struct {
	points []CalibrationPoint
}

// NewCalibrator builds a calibrator from knot points. A nil or empty
// knot list yields the identity calibrator. Knots are sorted by X;
// duplicate X or decreasing Y is rejected.
func NewCalibrator(points []CalibrationPoint) (*Calibrator, error) {
	if len(points) == 0 {
		return &Calibrator{}, nil
	}
	cp := make([]CalibrationPoint, len(points))
	copy(cp, points)
	sort.Slice(cp, func(i, j int) bool { return cp[i].X < cp[j].X })
	for i := 1; i < len(cp); i++ {
		if cp[i].X == cp[i-1].X {
			return nil, fmt.Errorf("calibration: duplicate knot x=%v", cp[i].X)
		}
		if cp[i].Y < cp[i-1].Y {
			return nil, fmt.Errorf("calibration: knots not monotone at x=%v", cp[i].X)
		}
	}
	return &Calibrator{points: cp}, nil
}

// Apply maps a raw score to a calibrated probability, clamped to
// [0,1]. Inputs outside the knot range clamp to the edge knots.
func (c *Calibrator) Apply(raw float64) float64 {
	if len(c.points) == 0 {
		return clamp01(raw)
	}
	pts := c.points
	if raw <= pts[0].X {
		return clamp01(pts[0].Y)
	}
	if raw >= pts[len(pts)-1].X {
		return clamp01(pts[len(pts)-1].Y)
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].X >= raw })
	lo, hi := pts[i-1], pts[i]
	frac := (raw - lo.X) / (hi.X - lo.X)
	return clamp01(lo.Y + frac*(hi.Y-lo.Y))
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

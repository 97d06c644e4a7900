package explain

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/kestrel-soc/kestrel/internal/model"
)

// SurrogateAttribution fits a proximity-weighted linear surrogate
// over feature coalitions: random subsets of features are reverted
// to the zero baseline, the classifier is queried on each masked
// vector, and the surrogate coefficients become the contributions.
// It works for any classifier but is an approximation; rankings are
// stable, exact magnitudes are not.
type SurrogateAttribution struct {
	// Samples is the number of masked points. Zero means 256.
	Samples int

	// KernelWidth scales the proximity weighting over mask distance.
	// Zero means 0.75 * sqrt(n features).
	KernelWidth float64

	// Seed makes masking deterministic. Zero seeds from the sample
	// count.
	Seed int64
}

// Name identifies the strategy in explanation records.
func (s *SurrogateAttribution) Name() string { return "surrogate" }

// Attribute returns one contribution per feature plus the surrogate
// intercept as baseline; contributions sum approximately to
// prediction - baseline.
func (s *SurrogateAttribution) Attribute(clf model.Classifier, x []float64, names []string) ([]Contribution, float64, error) {
	if clf == nil {
		return nil, 0, fmt.Errorf("no classifier")
	}
	n := len(x)
	if n != clf.NumFeatures() {
		return nil, 0, fmt.Errorf("vector length %d does not match classifier input %d", n, clf.NumFeatures())
	}

	samples := s.Samples
	if samples <= 0 {
		samples = 256
	}
	if samples < 2*n {
		samples = 2 * n
	}
	width := s.KernelWidth
	if width <= 0 {
		width = 0.75 * math.Sqrt(float64(n))
	}
	seed := s.Seed
	if seed == 0 {
		seed = int64(samples)
	}
	rng := rand.New(rand.NewSource(seed))

	masks := make([][]float64, samples)
	ys := make([]float64, samples)
	ws := make([]float64, samples)
	z := make([]float64, n)
	for k := 0; k < samples; k++ {
		mask := make([]float64, n)
		dropped := 0
		for i := range mask {
			if k < 2 {
				// Anchor the fit with the full and empty coalitions.
				mask[i] = float64(1 - k)
			} else if rng.Intn(2) == 0 {
				mask[i] = 1
			}
			if mask[i] == 0 {
				dropped++
			}
			z[i] = x[i] * mask[i]
		}
		y, err := clf.PredictProba(z)
		if err != nil {
			return nil, 0, err
		}
		d := float64(dropped)
		masks[k] = mask
		ys[k] = y
		ws[k] = math.Exp(-d * d / (width * width))
	}

	beta, intercept, err := weightedRidge(masks, ys, ws, 1e-3)
	if err != nil {
		return nil, 0, err
	}

	out := make([]Contribution, n)
	for i := range x {
		out[i] = Contribution{
			Index:       i,
			Name:        featureName(names, i),
			Value:       x[i],
			Attribution: beta[i],
		}
	}
	return out, intercept, nil
}

// weightedRidge fits y ~ intercept + beta·mask by centered weighted
// least squares with an L2 penalty, solved by Gaussian elimination
// with partial pivoting.
func weightedRidge(masks [][]float64, ys, ws []float64, lambda float64) (beta []float64, intercept float64, err error) {
	n := len(masks[0])

	wsum := 0.0
	ybar := 0.0
	mean := make([]float64, n)
	for k := range masks {
		wsum += ws[k]
		ybar += ws[k] * ys[k]
		for i := range mean {
			mean[i] += ws[k] * masks[k][i]
		}
	}
	if wsum <= 0 {
		return nil, 0, fmt.Errorf("degenerate coalition weights")
	}
	ybar /= wsum
	for i := range mean {
		mean[i] /= wsum
	}

	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n+1)
	}
	for k := range masks {
		yc := ys[k] - ybar
		for i := 0; i < n; i++ {
			xi := masks[k][i] - mean[i]
			for j := 0; j < n; j++ {
				a[i][j] += ws[k] * xi * (masks[k][j] - mean[j])
			}
			a[i][n] += ws[k] * xi * yc
		}
	}
	for i := 0; i < n; i++ {
		a[i][i] += lambda
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, 0, fmt.Errorf("singular surrogate system")
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for c := col; c <= n; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	beta = make([]float64, n)
	for i := 0; i < n; i++ {
		beta[i] = a[i][n] / a[i][i]
	}
	intercept = ybar
	for i := range beta {
		intercept -= beta[i] * mean[i]
	}
	return beta, intercept, nil
}

// Package explain produces per-feature attributions for a scored
// vector. Two strategies are available: exact path attribution for
// tree ensembles (with a sampling fallback for opaque classifiers)
// and a local linear surrogate. Both return signed contributions
// relative to a baseline that sum approximately to the raw score.
package explain

import (
	"sort"

	"github.com/kestrel-soc/kestrel/internal/model"
)

// Contribution is one feature's signed share of the score.
type Contribution struct {
	Index       int
	Name        string
	Value       float64
	Attribution float64
}

// Strategy computes attributions for one vector. Implementations
// must not mutate x.
type Strategy interface {
	// Name identifies the strategy in explanation records.
	Name() string

	// Attribute returns one contribution per feature plus the
	// baseline the contributions are relative to.
	Attribute(clf model.Classifier, x []float64, names []string) ([]Contribution, float64, error)
}

// TopK ranks contributions by absolute attribution, descending, and
// keeps the first k. Ties break on the lower feature index so the
// ranking is deterministic. k <= 0 yields an empty, non-nil slice.
func TopK(contribs []Contribution, k int) []Contribution {
	if k < 0 {
		k = 0
	}
	sorted := make([]Contribution, len(contribs))
	copy(sorted, contribs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := abs(sorted[i].Attribution), abs(sorted[j].Attribution)
		if ai != aj {
			return ai > aj
		}
		return sorted[i].Index < sorted[j].Index
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package explain

import (
	"fmt"
	"math/rand"

	"github.com/kestrel-soc/kestrel/internal/model"
)

// TreeAttribution explains tree ensembles exactly by walking each
// decision path: every split credits its feature with the change in
// node value along the taken branch, so contributions sum exactly to
// prediction - baseline. Classifiers that do not expose their trees
// get a permutation-sampling approximation against the zero-feature
// baseline instead.
type TreeAttribution struct {
	// Samples bounds the permutation budget for the fallback. Zero
	// means a reasonable default.
	Samples int

	// Seed makes the fallback deterministic. Zero seeds from the
	// permutation count.
	Seed int64
}

// Name identifies the strategy in explanation records.
func (t *TreeAttribution) Name() string { return "tree" }

// Attribute computes per-feature contributions for x.
func (t *TreeAttribution) Attribute(clf model.Classifier, x []float64, names []string) ([]Contribution, float64, error) {
	if clf == nil {
		return nil, 0, fmt.Errorf("no classifier")
	}
	if len(x) != clf.NumFeatures() {
		return nil, 0, fmt.Errorf("vector length %d does not match classifier input %d", len(x), clf.NumFeatures())
	}

	if te, ok := clf.(model.TreeEnsemble); ok {
		return t.exact(te, x, names)
	}
	return t.sampled(clf, x, names)
}

func (t *TreeAttribution) exact(te model.TreeEnsemble, x []float64, names []string) ([]Contribution, float64, error) {
	attr := make([]float64, len(x))
	trees := te.Trees()
	for ti := range trees {
		nodes := trees[ti].Nodes
		i := 0
		for !nodes[i].Leaf() {
			n := &nodes[i]
			next := n.Left
			if x[n.Feature] > n.Threshold {
				next = n.Right
			}
			attr[n.Feature] += nodes[next].Value - n.Value
			i = next
		}
	}
	scale := 1.0 / float64(len(trees))
	out := make([]Contribution, len(x))
	for i := range x {
		out[i] = Contribution{Index: i, Name: featureName(names, i), Value: x[i], Attribution: attr[i] * scale}
	}
	return out, te.Baseline(), nil
}

// sampled estimates marginal contributions by building x up from the
// baseline in random feature orders and averaging each feature's
// prediction delta.
func (t *TreeAttribution) sampled(clf model.Classifier, x []float64, names []string) ([]Contribution, float64, error) {
	samples := t.Samples
	if samples <= 0 {
		samples = 128
	}
	seed := t.Seed
	if seed == 0 {
		seed = int64(samples)
	}
	rng := rand.New(rand.NewSource(seed))

	n := len(x)
	baselineVec := make([]float64, n)
	baseline, err := clf.PredictProba(baselineVec)
	if err != nil {
		return nil, 0, err
	}

	attr := make([]float64, n)
	z := make([]float64, n)
	for s := 0; s < samples; s++ {
		copy(z, baselineVec)
		prev := baseline
		for _, i := range rng.Perm(n) {
			z[i] = x[i]
			p, err := clf.PredictProba(z)
			if err != nil {
				return nil, 0, err
			}
			attr[i] += p - prev
			prev = p
		}
	}

	out := make([]Contribution, n)
	for i := range x {
		out[i] = Contribution{Index: i, Name: featureName(names, i), Value: x[i], Attribution: attr[i] / float64(samples)}
	}
	return out, baseline, nil
}

func featureName(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("f%d", i)
}

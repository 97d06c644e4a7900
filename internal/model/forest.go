// Package model loads scoring artifacts and turns feature vectors
// into calibrated probabilities. The artifact format is a JSON tree
// ensemble exported at training time: every node carries the mean
// positive-class probability of the training samples that reached it,
// which is what exact path attribution needs.
package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// Classifier produces a raw positive-class probability for a feature
// vector of exactly NumFeatures entries.
type Classifier interface {
	// PredictProba returns P(malicious) before calibration.
	PredictProba(x []float64) (float64, error)

	// NumFeatures is the expected input vector length.
	NumFeatures() int

	// Version identifies the artifact.
	Version() string
}

// TreeEnsemble is a Classifier whose trees are inspectable. Exact
// path attribution requires this; other classifiers get the sampling
// fallback.
type TreeEnsemble interface {
	Classifier

	// Trees returns the underlying decision trees.
	Trees() []Tree

	// Baseline is the ensemble mean prediction at the roots.
	Baseline() float64
}

// Node is one decision tree node. Internal nodes split on
// x[Feature] <= Threshold; leaves have Feature == -1. Value holds the
// mean P(malicious) over training samples reaching the node.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Leaf reports whether the node is a leaf.
func (n *Node) Leaf() bool { return n.Feature < 0 }

// Tree is a binary decision tree stored as a node array with the
// root at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for one vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].Leaf() {
		n := &t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// CalibrationPoint is one knot of the isotonic calibration curve.
type CalibrationPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Forest is a loaded tree-ensemble artifact.
type Forest struct {
	ModelVersion string             `json:"version"`
	NFeatures    int                `json:"nFeatures"`
	TreeList     []Tree             `json:"trees"`
	Calibration  []CalibrationPoint `json:"calibration,omitempty"`
}

// Load reads and validates a forest artifact from disk.
func Load(path string) (*Forest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read artifact: %v", domain.ErrModelUnavailable, err)
	}
	var f Forest
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: parse artifact: %v", domain.ErrModelUnavailable, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return &f, nil
}

func (f *Forest) validate() error {
	if f.NFeatures <= 0 {
		return fmt.Errorf("artifact declares %d features", f.NFeatures)
	}
	if len(f.TreeList) == 0 {
		return fmt.Errorf("artifact has no trees")
	}
	for ti, t := range f.TreeList {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf() {
				continue
			}
			if n.Feature >= f.NFeatures {
				return fmt.Errorf("tree %d node %d splits on feature %d, artifact has %d", ti, ni, n.Feature, f.NFeatures)
			}
			if n.Left < 0 || n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has out-of-range children", ti, ni)
			}
		}
	}
	return nil
}

// PredictProba averages tree predictions. The vector length must
// match the artifact exactly; a mismatch means the feature map and
// model are out of step and scoring must stop.
func (f *Forest) PredictProba(x []float64) (float64, error) {
	if len(x) != f.NFeatures {
		return 0, &domain.DimensionError{Got: len(x), Want: f.NFeatures}
	}
	sum := 0.0
	for i := range f.TreeList {
		sum += f.TreeList[i].Predict(x)
	}
	return sum / float64(len(f.TreeList)), nil
}

// NumFeatures returns the expected input vector length.
func (f *Forest) NumFeatures() int { return f.NFeatures }

// Version returns the artifact version string.
func (f *Forest) Version() string { return f.ModelVersion }

// Trees returns the underlying decision trees.
func (f *Forest) Trees() []Tree { return f.TreeList }

// Baseline returns the mean root value across trees.
func (f *Forest) Baseline() float64 {
	if len(f.TreeList) == 0 {
		return 0
	}
	sum := 0.0
	for i := range f.TreeList {
		sum += f.TreeList[i].Nodes[0].Value
	}
	return sum / float64(len(f.TreeList))
}

// Package schema loads and validates the ordered feature map that
// fixes the model input layout. Order in the file is the vector
// order; the map version travels with every explanation record so a
// stored record can always be traced back to the layout that
// produced it.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// Feature is one named slot in the model input vector.
type Feature struct {
	Name    string  `json:"name" yaml:"name"`
	Default float64 `json:"default" yaml:"default"`
}

type mapFile struct {
	Version  int       `json:"version" yaml:"version"`
	Features []Feature `json:"features" yaml:"features"`
}

// Map is a validated, immutable feature map.
type Map struct {
	version  int
	features []Feature
	index    map[string]int
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Load reads a feature map from a YAML or JSON file, chosen by
// extension.
func Load(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature map: %w", err)
	}

	var f mapFile
	switch filepath.Ext(path) {
	case ".json":
		err = json.Unmarshal(raw, &f)
	default:
		err = yaml.Unmarshal(raw, &f)
	}
	if err != nil {
		return nil, &domain.SchemaError{Reason: err.Error()}
	}

	return New(f.Version, f.Features)
}

// New validates the feature list and builds a Map. The list must be
// non-empty, names must be lowercase snake_case identifiers, and no
// name may repeat.
func New(version int, features []Feature) (*Map, error) {
	if len(features) == 0 {
		return nil, &domain.SchemaError{Reason: "no features defined"}
	}
	if version <= 0 {
		return nil, &domain.SchemaError{Reason: fmt.Sprintf("version must be positive, got %d", version)}
	}

	index := make(map[string]int, len(features))
	for i, ft := range features {
		if !identPattern.MatchString(ft.Name) {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("feature %q is not a valid identifier", ft.Name)}
		}
		if _, dup := index[ft.Name]; dup {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("duplicate feature %q", ft.Name)}
		}
		index[ft.Name] = i
	}

	cp := make([]Feature, len(features))
	copy(cp, features)
	return &Map{version: version, features: cp, index: index}, nil
}

// Version returns the feature map version.
func (m *Map) Version() int { return m.version }

// Len returns the number of features, which is the vector length.
func (m *Map) Len() int { return len(m.features) }

// IndexOf returns the vector position of a feature name.
func (m *Map) IndexOf(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Names returns feature names in vector order.
func (m *Map) Names() []string {
	out := make([]string, len(m.features))
	for i, ft := range m.features {
		out[i] = ft.Name
	}
	return out
}

// Features returns a copy of the feature list in vector order.
func (m *Map) Features() []Feature {
	cp := make([]Feature, len(m.features))
	copy(cp, m.features)
	return cp
}

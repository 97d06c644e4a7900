// Package vector projects a canonical mapping onto the fixed feature
// order defined by the schema. Vectorization is total: it always
// produces a full-length vector, substituting declared defaults for
// missing values and recording every substitution and coercion in an
// audit trail.
package vector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kestrel-soc/kestrel/internal/canonical"
	"github.com/kestrel-soc/kestrel/internal/schema"
)

// Coercion records a canonical value that could not be used as-is.
type Coercion struct {
	Feature string `json:"feature"`
	Raw     string `json:"raw"`
	Reason  string `json:"reason"`
}

// Audit describes how a vector was assembled.
type Audit struct {
	// Order is the feature name order, identical to the schema order.
	Order []string

	// UsedDefault marks positions filled from the declared default
	// rather than the alert.
	UsedDefault []bool

	// Coercions lists values that were present but not numeric.
	Coercions []Coercion
}

// CoveragePct returns the share of features filled from the alert,
// in percent.
func (a *Audit) CoveragePct() float64 {
	if len(a.UsedDefault) == 0 {
		return 0
	}
	filled := 0
	for _, d := range a.UsedDefault {
		if !d {
			filled++
		}
	}
	return 100 * float64(filled) / float64(len(a.UsedDefault))
}

// Missing returns the names of features filled from defaults.
func (a *Audit) Missing() []string {
	var out []string
	for i, d := range a.UsedDefault {
		if d {
			out = append(out, a.Order[i])
		}
	}
	return out
}

// Coerced returns the names of features whose raw value needed a
// lossy conversion or default substitution due to type.
func (a *Audit) Coerced() []string {
	var out []string
	for _, c := range a.Coercions {
		out = append(out, c.Feature)
	}
	return out
}

// Vectorize builds the model input vector for a canonical mapping.
// It never fails: absent features take their declared default, and
// present but non-numeric values fall back to the default with a
// coercion entry in the audit.
func Vectorize(m canonical.Mapping, fm *schema.Map) ([]float64, *Audit) {
	feats := fm.Features()
	vec := make([]float64, len(feats))
	audit := &Audit{
		Order:       fm.Names(),
		UsedDefault: make([]bool, len(feats)),
	}

	for i, ft := range feats {
		raw, ok := m[ft.Name]
		if !ok {
			vec[i] = ft.Default
			audit.UsedDefault[i] = true
			continue
		}
		val, err := coerce(raw)
		if err != nil {
			vec[i] = ft.Default
			audit.UsedDefault[i] = true
			audit.Coercions = append(audit.Coercions, Coercion{
				Feature: ft.Name,
				Raw:     fmt.Sprintf("%v", raw),
				Reason:  err.Error(),
			})
			continue
		}
		vec[i] = val
	}
	return vec, audit
}

// coerce converts a canonical value to float64. Booleans become 0/1
// and numeric strings are parsed; anything else is an error.
func coerce(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric")
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

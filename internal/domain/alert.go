// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Alert is a raw alert document as received from a collector or SIEM
// forwarder. It is schemaless on purpose: different sources ship wildly
// different shapes, and canonicalization is responsible for flattening
// it into a stable mapping. An Alert is never mutated after ingestion.
type Alert map[string]any

// ScoreRequest is the API request payload for alert scoring.
type ScoreRequest struct {
	AlertID string `json:"alertId" validate:"required"`
	Alert   Alert  `json:"alert" validate:"required"`
}

// GetString walks a dotted path through nested objects and returns the
// value as a string. The second return is false when any path segment
// is missing or not an object.
func (a Alert) GetString(path ...string) (string, bool) {
	v, ok := a.Get(path...)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// Get walks a dotted path through nested objects.
func (a Alert) Get(path ...string) (any, bool) {
	var cur any = map[string]any(a)
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetMap returns the nested object at a dotted path.
func (a Alert) GetMap(path ...string) (map[string]any, bool) {
	v, ok := a.Get(path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// GetSlice returns the array at a dotted path.
func (a Alert) GetSlice(path ...string) ([]any, bool) {
	v, ok := a.Get(path...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

package explain

import (
	"sort"
	"strings"
	"time"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

const snippetLimit = 240

// Default relevance weights per event kind. Authentication and
// execution evidence tends to matter more to an analyst than generic
// network noise.
var defaultKindWeights = map[string]float64{
	"authentication": 1.0,
	"auth":           1.0,
	"execution":      0.9,
	"process":        0.9,
	"persistence":    0.8,
	"lateral":        0.8,
	"network":        0.5,
	"file":           0.4,
}

// EventRanker picks the evidence entries most worth an analyst's
// attention. Selection is a heuristic over kind relevance and
// recency, never a causal claim; records carry a flag saying so.
type EventRanker struct {
	kindWeights map[string]float64
	limit       int
}

// NewEventRanker builds a ranker keeping at most limit events.
// limit <= 0 keeps five.
func NewEventRanker(limit int) *EventRanker {
	if limit <= 0 {
		limit = 5
	}
	return &EventRanker{kindWeights: defaultKindWeights, limit: limit}
}

// Rank extracts and ranks the alert's evidence entries. Alerts
// without an evidence array yield nil.
func (r *EventRanker) Rank(alert domain.Alert) []domain.DecisiveEvent {
	raw, ok := alert.GetSlice("evidence")
	if !ok || len(raw) == 0 {
		return nil
	}

	type scored struct {
		ev  domain.DecisiveEvent
		pos int
	}
	var events []scored
	for pos, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ev := domain.DecisiveEvent{
			Timestamp: firstString(m, "@timestamp", "timestamp", "ts"),
			Kind:      eventKind(m),
			Snippet:   truncate(stringField(m, "message"), snippetLimit),
		}
		events = append(events, scored{ev: ev, pos: pos})
	}
	if len(events) == 0 {
		return nil
	}

	// Recency: newest timestamp scores 1, oldest 0. Entries without a
	// parseable timestamp fall back to array position.
	times := make([]time.Time, len(events))
	parseable := true
	for i, e := range events {
		t, err := time.Parse(time.RFC3339, e.ev.Timestamp)
		if err != nil {
			parseable = false
			break
		}
		times[i] = t
	}

	for i := range events {
		recency := 0.0
		if len(events) > 1 {
			if parseable {
				recency = recencyByTime(times, i)
			} else {
				recency = float64(events[i].pos) / float64(len(events)-1)
			}
		}
		events[i].ev.Relevance = r.weightFor(events[i].ev.Kind) + recency
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ev.Relevance > events[j].ev.Relevance
	})

	limit := r.limit
	if limit > len(events) {
		limit = len(events)
	}
	out := make([]domain.DecisiveEvent, limit)
	for i := range out {
		out[i] = events[i].ev
	}
	return out
}

func recencyByTime(times []time.Time, i int) float64 {
	min, max := times[0], times[0]
	for _, t := range times {
		if t.Before(min) {
			min = t
		}
		if t.After(max) {
			max = t
		}
	}
	span := max.Sub(min)
	if span <= 0 {
		return 1
	}
	return float64(times[i].Sub(min)) / float64(span)
}

func (r *EventRanker) weightFor(kind string) float64 {
	k := strings.ToLower(kind)
	for key, w := range r.kindWeights {
		if strings.Contains(k, key) {
			return w
		}
	}
	return 0.3
}

func eventKind(m map[string]any) string {
	if k := stringField(m, "kind"); k != "" {
		return k
	}
	if rule, ok := m["rule"].(map[string]any); ok {
		if d := stringField(rule, "description"); d != "" {
			return d
		}
	}
	return "event"
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(m, k); s != "" {
			return s
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

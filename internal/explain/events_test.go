package explain

import (
	"strings"
	"testing"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

func TestEventRanker(t *testing.T) {
	alert := domain.Alert{
		"evidence": []any{
			map[string]any{
				"@timestamp": "2024-10-10T12:00:00Z",
				"kind":       "network",
				"message":    "connection allowed 10.0.0.5:42133 -> 8.8.8.8:22",
			},
			map[string]any{
				"@timestamp": "2024-10-10T12:00:05Z",
				"kind":       "authentication",
				"message":    "Failed password for root from 10.0.0.5",
			},
			map[string]any{
				"@timestamp": "2024-10-10T12:00:09Z",
				"kind":       "authentication",
				"message":    "Failed password for admin from 10.0.0.5",
			},
		},
	}

	events := NewEventRanker(2).Rank(alert)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Both kept events are auth: kind weight dominates, recency
	// breaks the tie in favor of the newest.
	if events[0].Kind != "authentication" || events[1].Kind != "authentication" {
		t.Errorf("expected authentication events first, got %v / %v", events[0].Kind, events[1].Kind)
	}
	if events[0].Timestamp != "2024-10-10T12:00:09Z" {
		t.Errorf("newest auth event should rank first, got %v", events[0].Timestamp)
	}
	if events[0].Relevance <= events[1].Relevance {
		t.Errorf("relevance should be descending: %v, %v", events[0].Relevance, events[1].Relevance)
	}
}

func TestEventRankerFallbacks(t *testing.T) {
	// No evidence at all.
	if got := NewEventRanker(5).Rank(domain.Alert{"rule": map[string]any{}}); got != nil {
		t.Errorf("expected nil for missing evidence, got %v", got)
	}

	// Kind falls back to rule.description; unparseable timestamps
	// fall back to array order.
	alert := domain.Alert{
		"evidence": []any{
			map[string]any{
				"ts":      "yesterday",
				"rule":    map[string]any{"description": "sshd brute force"},
				"message": "first",
			},
			map[string]any{
				"ts":      "today",
				"message": "second",
			},
		},
	}
	events := NewEventRanker(5).Rank(alert)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	found := false
	for _, e := range events {
		if e.Kind == "sshd brute force" {
			found = true
		}
	}
	if !found {
		t.Error("rule description should serve as kind")
	}
}

func TestEventRankerSnippetTruncation(t *testing.T) {
	long := strings.Repeat("x", 1000)
	alert := domain.Alert{
		"evidence": []any{
			map[string]any{"kind": "auth", "message": long},
		},
	}
	events := NewEventRanker(5).Rank(alert)
	if len(events) != 1 {
		t.Fatal("expected one event")
	}
	if len(events[0].Snippet) != 240 {
		t.Errorf("snippet length = %d, want 240", len(events[0].Snippet))
	}
}

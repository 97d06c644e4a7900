package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/kestrel-soc/kestrel/internal/cache"
	"github.com/kestrel-soc/kestrel/internal/domain"
	"github.com/kestrel-soc/kestrel/internal/feedback"
	"github.com/kestrel-soc/kestrel/internal/model"
	"github.com/kestrel-soc/kestrel/internal/policy"
	"github.com/kestrel-soc/kestrel/internal/schema"
	"github.com/kestrel-soc/kestrel/internal/store"
	"github.com/kestrel-soc/kestrel/internal/triage"
)

// createTestServer wires a full embedded stack: SQLite store, LRU
// cache, a one-tree forest splitting on auth_fail_5m.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	tmpFile, err := os.CreateTemp("", "kestrel-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	st, err := store.New(domain.StoreConfig{
		Backend:    "sql",
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	forest := &model.Forest{
		ModelVersion: "rf-test-1",
		NFeatures:    3,
		TreeList: []model.Tree{
			{Nodes: []model.Node{
				{Feature: 2, Threshold: 5, Left: 1, Right: 2, Value: 0.5},
				{Feature: -1, Value: 0.2},
				{Feature: -1, Value: 0.9},
			}},
		},
		Calibration: []model.CalibrationPoint{
			{X: 0, Y: 0},
			{X: 0.9, Y: 0.75},
			{X: 1, Y: 1},
		},
	}
	scorer, err := model.NewForestScorer(forest, 0.5)
	if err != nil {
		t.Fatalf("NewForestScorer failed: %v", err)
	}

	fm, err := schema.New(3, []schema.Feature{
		{Name: "srcport", Default: 0},
		{Name: "dstport", Default: 0},
		{Name: "auth_fail_5m", Default: 0},
	})
	if err != nil {
		t.Fatalf("schema.New failed: %v", err)
	}

	pol, err := policy.New(policy.Config{})
	if err != nil {
		t.Fatalf("policy.New failed: %v", err)
	}

	c := cache.NewLRUCache(100)

	processor, err := triage.NewProcessor(triage.Config{
		Scorer:     scorer,
		FeatureMap: fm,
		Policy:     pol,
		Store:      st,
		Cache:      c,
	})
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	fb := feedback.NewPipeline(st, nil)

	return NewServer(cfg, processor, fb, st, c, "test-v1")
}

func scoreBody(alertID string) []byte {
	body, _ := json.Marshal(domain.ScoreRequest{
		AlertID: alertID,
		Alert: domain.Alert{
			"rule": map[string]any{"level": float64(10), "description": "sshd brute force"},
			"data": map[string]any{
				"srcip":   "203.0.113.7",
				"dstip":   "10.0.0.4",
				"srcport": float64(51022),
				"dstport": float64(22),
			},
			"enrich": map[string]any{"auth_fail_5m": float64(12)},
		},
	})
	return body
}

func TestScoreEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(scoreBody("alert-001")))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.AlertID != "alert-001" {
			t.Errorf("expected alert-001, got %s", resp.AlertID)
		}
		if resp.Score != 0.75 {
			t.Errorf("expected calibrated score 0.75, got %v", resp.Score)
		}
		if resp.Decision != domain.DecisionEscalate {
			t.Errorf("expected escalate, got %s", resp.Decision)
		}
		if len(resp.TopFeatures) == 0 {
			t.Error("expected ranked feature contributions")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingAlertID", func(t *testing.T) {
		body, _ := json.Marshal(domain.ScoreRequest{
			Alert: domain.Alert{"rule": map[string]any{"level": float64(3)}},
		})
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingAlertPayload", func(t *testing.T) {
		body, _ := json.Marshal(domain.ScoreRequest{AlertID: "alert-empty"})
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(scoreBody("alert-hdr")))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestExplanationEndpoint(t *testing.T) {
	server := createTestServer(t)

	// Seed one scored alert.
	req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(scoreBody("alert-002")))
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("seed score failed: %d %s", rr.Code, rr.Body.String())
	}

	t.Run("Found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/explanations/alert-002", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var rec domain.ExplanationRecord
		if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if rec.AlertID != "alert-002" {
			t.Errorf("expected alert-002, got %s", rec.AlertID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/explanations/no-such-alert", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestFeedbackEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Accepted", func(t *testing.T) {
		body, _ := json.Marshal(domain.FeedbackRequest{
			AlertID:        "alert-fb",
			Label:          1,
			DecisionTimeMs: 4200,
		})
		req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Errorf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidLabel", func(t *testing.T) {
		body, _ := json.Marshal(domain.FeedbackRequest{
			AlertID: "alert-fb",
			Label:   7,
		})
		req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/feedback/alert-fb", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			AlertID  string                  `json:"alertId"`
			Feedback []domain.FeedbackRecord `json:"feedback"`
			Count    int                     `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 || len(resp.Feedback) != 1 {
			t.Errorf("expected 1 feedback record, got %d", resp.Count)
		}
	})
}

func TestFeatureMapEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/featuremap", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Version  int              `json:"version"`
		Features []schema.Feature `json:"features"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Version != 3 {
		t.Errorf("expected version 3, got %d", resp.Version)
	}
	if resp.Count != 3 || len(resp.Features) != 3 {
		t.Errorf("expected 3 features, got %d", resp.Count)
	}
	if resp.Features[0].Name != "srcport" {
		t.Errorf("feature order must be preserved, got %s first", resp.Features[0].Name)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// Default index names. Versioned so a mapping change ships as a new
// index instead of mutating the old one.
const (
	DefaultExplainIndex  = "kestrel-explain-v1"
	DefaultFeedbackIndex = "kestrel-feedback-v1"

	defaultIndexTimeout = 10 * time.Second
	maxFeedbackHits     = 1000
)

// IndexStore implements domain.RecordStore against a search index
// over its REST document API (OpenSearch or Elasticsearch).
// Explanations are indexed with the alert ID as document ID, which
// makes a re-score an idempotent upsert; feedback documents get
// generated IDs so submissions append.
type IndexStore struct {
	baseURL       string
	client        *http.Client
	username      string
	password      string
	explainIndex  string
	feedbackIndex string
}

// NewIndexStore builds an index-backed record store. No network call
// happens here; use Ping to verify connectivity.
func NewIndexStore(cfg domain.StoreConfig) (*IndexStore, error) {
	if cfg.IndexURL == "" {
		return nil, fmt.Errorf("index store requires a URL")
	}
	base := strings.TrimRight(cfg.IndexURL, "/")
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid index URL: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultIndexTimeout
	}

	transport := http.DefaultTransport
	if cfg.IndexInsecureTLS {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	explainIndex := cfg.ExplainIndex
	if explainIndex == "" {
		explainIndex = DefaultExplainIndex
	}
	feedbackIndex := cfg.FeedbackIndex
	if feedbackIndex == "" {
		feedbackIndex = DefaultFeedbackIndex
	}

	return &IndexStore{
		baseURL:       base,
		client:        &http.Client{Timeout: timeout, Transport: transport},
		username:      cfg.IndexUsername,
		password:      cfg.IndexPassword,
		explainIndex:  explainIndex,
		feedbackIndex: feedbackIndex,
	}, nil
}

// PutExplanation upserts the record with the alert ID as document ID.
func (s *IndexStore) PutExplanation(ctx context.Context, rec *domain.ExplanationRecord) error {
	if rec == nil || rec.AlertID == "" {
		return fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}
	path := fmt.Sprintf("/%s/_doc/%s?refresh=true", s.explainIndex, url.PathEscape(rec.AlertID))
	_, err := s.do(ctx, http.MethodPut, path, rec)
	return err
}

// GetExplanation fetches the record document for an alert ID.
func (s *IndexStore) GetExplanation(ctx context.Context, alertID string) (*domain.ExplanationRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}
	path := fmt.Sprintf("/%s/_doc/%s", s.explainIndex, url.PathEscape(alertID))
	body, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Found  bool                      `json:"found"`
		Source *domain.ExplanationRecord `json:"_source"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode document: %v", domain.ErrStoreUnavailable, err)
	}
	if !doc.Found || doc.Source == nil {
		return nil, domain.ErrNotFound
	}
	return doc.Source, nil
}

// PutFeedback appends a feedback document with a generated ID.
func (s *IndexStore) PutFeedback(ctx context.Context, rec *domain.FeedbackRecord) error {
	if rec == nil || rec.AlertID == "" {
		return fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}
	path := fmt.Sprintf("/%s/_doc/%s?refresh=true", s.feedbackIndex, url.PathEscape(rec.ID))
	_, err := s.do(ctx, http.MethodPut, path, rec)
	return err
}

// ListFeedback queries feedback documents for an alert ID, oldest
// first.
func (s *IndexStore) ListFeedback(ctx context.Context, alertID string) ([]*domain.FeedbackRecord, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert ID is required", domain.ErrInvalidInput)
	}

	query := map[string]any{
		"size": maxFeedbackHits,
		"query": map[string]any{
			"term": map[string]any{"alertId.keyword": alertID},
		},
		"sort": []any{
			map[string]any{"submittedAt": map[string]any{"order": "asc"}},
		},
	}
	path := fmt.Sprintf("/%s/_search", s.feedbackIndex)
	body, err := s.do(ctx, http.MethodPost, path, query)
	if err != nil {
		return nil, err
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source *domain.FeedbackRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", domain.ErrStoreUnavailable, err)
	}

	var records []*domain.FeedbackRecord
	for _, hit := range result.Hits.Hits {
		if hit.Source != nil {
			records = append(records, hit.Source)
		}
	}
	return records, nil
}

// Ping checks index reachability.
func (s *IndexStore) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, "/", nil)
	return err
}

// Close is a no-op; the HTTP client holds no persistent resources
// beyond its connection pool.
func (s *IndexStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do runs one REST call. Connectivity failures and 5xx responses map
// to ErrStoreUnavailable; a 404 maps to ErrNotFound.
func (s *IndexStore) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload", domain.ErrInvalidInput)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrStoreUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	default:
		return nil, fmt.Errorf("%w: %s %s returned %d", domain.ErrStoreUnavailable, method, path, resp.StatusCode)
	}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// fakeIndex is a minimal document-API server covering the calls the
// store makes: PUT/GET _doc and _search with a term query.
type fakeIndex struct {
	mu   sync.Mutex
	docs map[string]map[string]json.RawMessage // index -> id -> source
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: map[string]map[string]json.RawMessage{}}
}

func (f *fakeIndex) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.URL.Path == "/" {
			fmt.Fprint(w, `{"cluster_name":"fake"}`)
			return
		}

		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 3)
		index := parts[0]

		if len(parts) == 2 && parts[1] == "_search" {
			var q struct {
				Query struct {
					Term map[string]string `json:"term"`
				} `json:"query"`
			}
			json.NewDecoder(r.Body).Decode(&q)
			want := q.Query.Term["alertId.keyword"]

			type hit struct {
				Source json.RawMessage `json:"_source"`
			}
			var hits []hit
			var ids []string
			for id := range f.docs[index] {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				src := f.docs[index][id]
				var doc struct {
					AlertID     string    `json:"alertId"`
					SubmittedAt time.Time `json:"submittedAt"`
				}
				json.Unmarshal(src, &doc)
				if doc.AlertID == want {
					hits = append(hits, hit{Source: src})
				}
			}
			sort.SliceStable(hits, func(i, j int) bool {
				var a, b struct {
					SubmittedAt time.Time `json:"submittedAt"`
				}
				json.Unmarshal(hits[i].Source, &a)
				json.Unmarshal(hits[j].Source, &b)
				return a.SubmittedAt.Before(b.SubmittedAt)
			})

			resp := map[string]any{"hits": map[string]any{"hits": hits}}
			json.NewEncoder(w).Encode(resp)
			return
		}

		if len(parts) == 3 && parts[1] == "_doc" {
			id := parts[2]
			switch r.Method {
			case http.MethodPut:
				var src json.RawMessage
				json.NewDecoder(r.Body).Decode(&src)
				if f.docs[index] == nil {
					f.docs[index] = map[string]json.RawMessage{}
				}
				created := f.docs[index][id] == nil
				f.docs[index][id] = src
				if created {
					w.WriteHeader(http.StatusCreated)
				}
				fmt.Fprint(w, `{"result":"ok"}`)
			case http.MethodGet:
				src, ok := f.docs[index][id]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					fmt.Fprint(w, `{"found":false}`)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{"found": true, "_source": src})
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
			return
		}

		w.WriteHeader(http.StatusBadRequest)
	})
}

func newTestIndexStore(t *testing.T) (*IndexStore, *fakeIndex) {
	t.Helper()
	fake := newFakeIndex()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	s, err := NewIndexStore(domain.StoreConfig{
		Backend:  "index",
		IndexURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("NewIndexStore failed: %v", err)
	}
	return s, fake
}

func TestIndexStoreExplanationRoundTrip(t *testing.T) {
	s, _ := newTestIndexStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	rec := sampleRecord("alert-idx-1", 0.8)
	if err := s.PutExplanation(ctx, rec); err != nil {
		t.Fatalf("PutExplanation failed: %v", err)
	}

	got, err := s.GetExplanation(ctx, "alert-idx-1")
	if err != nil {
		t.Fatalf("GetExplanation failed: %v", err)
	}
	if got.AlertID != rec.AlertID || got.Score != rec.Score {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Same document ID: a second put replaces, never duplicates.
	rec.Score = 0.1
	rec.Decision = domain.DecisionDismiss
	if err := s.PutExplanation(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetExplanation(ctx, "alert-idx-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 0.1 || got.Decision != domain.DecisionDismiss {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestIndexStoreNotFound(t *testing.T) {
	s, _ := newTestIndexStore(t)
	_, err := s.GetExplanation(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndexStoreFeedback(t *testing.T) {
	s, _ := newTestIndexStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		rec := &domain.FeedbackRecord{
			AlertID:     "alert-idx-2",
			Label:       i % 2,
			LabelSource: domain.LabelSourceAnalyst,
			TrustScore:  4,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.PutFeedback(ctx, rec); err != nil {
			t.Fatalf("PutFeedback failed: %v", err)
		}
	}
	// Unrelated alert's feedback must not show up.
	other := &domain.FeedbackRecord{AlertID: "alert-other", Label: 1, LabelSource: "rule", TrustScore: 2, SubmittedAt: base}
	if err := s.PutFeedback(ctx, other); err != nil {
		t.Fatal(err)
	}

	records, err := s.ListFeedback(ctx, "alert-idx-2")
	if err != nil {
		t.Fatalf("ListFeedback failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].SubmittedAt.Before(records[i-1].SubmittedAt) {
			t.Error("feedback not sorted by submission time")
		}
	}
}

func TestIndexStoreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	s, err := NewIndexStore(domain.StoreConfig{IndexURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	err = s.PutExplanation(context.Background(), sampleRecord("a", 0.5))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}

	// Connection refused maps the same way.
	srv.Close()
	err = s.Ping(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable after close, got %v", err)
	}
}

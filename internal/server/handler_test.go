package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookbridge/searchd/internal/catalog"
	"github.com/bookbridge/searchd/internal/index"
	"github.com/bookbridge/searchd/internal/search"
	syncpkg "github.com/bookbridge/searchd/internal/sync"
	"github.com/bookbridge/searchd/pkg/config"
)

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultPageSize:  20,
		MaxPageSize:      100,
		FuzzyBudget:      50 * time.Millisecond,
		TextWeight:       0.6,
		PopularityWeight: 0.25,
		RecencyWeight:    0.15,
		TitleBoost:       2.0,
	}
}

func testIndexConfig() config.IndexConfig {
	return config.IndexConfig{
		Shards:        4,
		PrefixMaxLen:  12,
		MinTokenLen:   2,
		FuzzyDistance: 2,
	}
}

// newTestHandler builds a handler over an in-memory store and one indexed
// book, with the query cache disabled.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store := catalog.NewMemStore()
	idx := index.New(testIndexConfig())
	builder := index.NewBuilder(testIndexConfig())

	rec := &catalog.Record{
		ID:    "b1",
		Kind:  catalog.KindBook,
		Attrs: catalog.Attributes{Title: "The Hobbit"},
	}
	rev, err := store.Put(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := builder.Build(rec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upsert(doc); err != nil {
		t.Fatal(err)
	}

	watermark := syncpkg.NewWatermark()
	watermark.Advance(rev, true)

	searcher := search.New(idx, testSearchConfig(), testIndexConfig(), search.Options{})
	return New(searcher, store, nil, watermark, idx, testSearchConfig())
}

func TestStatusReportsDocumentCount(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest("GET", "/api/v1/status", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if got, ok := body["documents"].(float64); !ok || got != 1 {
		t.Errorf("documents = %v, want 1", body["documents"])
	}
	for _, field := range []string{"store_revision", "index_cursor", "lag", "staleness_ms"} {
		if _, ok := body[field]; !ok {
			t.Errorf("status payload missing %q", field)
		}
	}
}

func TestSearchServesWithoutCache(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest("GET", "/api/v1/search?q=hobbit", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result search.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Results) != 1 || result.Results[0].DocumentID != "b1" {
		t.Errorf("unexpected results: %+v", result.Results)
	}
}

func TestCacheStatsReportsDisabled(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest("GET", "/api/v1/cache/stats", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "disabled" {
		t.Errorf("cache stats = %v, want disabled", body)
	}
}

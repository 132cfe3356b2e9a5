package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bookbridge/searchd/internal/search"
)

// fakeRevisions is a RevisionSource backed by a plain map.
type fakeRevisions struct {
	mu   sync.Mutex
	revs map[string]uint64
}

func newFakeRevisions() *fakeRevisions {
	return &fakeRevisions{revs: make(map[string]uint64)}
}

func (f *fakeRevisions) Revision(id string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revs[id]
}

func (f *fakeRevisions) set(id string, rev uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revs[id] = rev
}

func testRequest(terms ...string) *search.Request {
	return &search.Request{
		Terms:    terms,
		Sort:     search.SortRelevance,
		Page:     1,
		PageSize: 20,
	}
}

func testResult(docIDs ...string) *search.Result {
	hits := make([]search.Hit, 0, len(docIDs))
	for _, id := range docIDs {
		hits = append(hits, search.Hit{DocumentID: id})
	}
	return &search.Result{Results: hits, TotalEstimate: len(hits)}
}

func TestCacheHitWhileRevisionsCurrent(t *testing.T) {
	revs := newFakeRevisions()
	revs.set("b1", 3)
	c := New(NewLRU(16), revs, time.Minute, nil)

	req := testRequest("hobbit")
	c.Put(context.Background(), req, testResult("b1"))

	got, ok := c.Get(context.Background(), req)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Results[0].DocumentID != "b1" {
		t.Errorf("wrong cached result: %+v", got)
	}
}

func TestCacheMissAfterRevisionAdvance(t *testing.T) {
	revs := newFakeRevisions()
	revs.set("b1", 3)
	c := New(NewLRU(16), revs, time.Minute, nil)

	req := testRequest("hobbit")
	c.Put(context.Background(), req, testResult("b1"))

	revs.set("b1", 4)
	if _, ok := c.Get(context.Background(), req); ok {
		t.Error("entry served after a contributing document changed")
	}
}

func TestCacheMissAfterDocumentRemoved(t *testing.T) {
	revs := newFakeRevisions()
	revs.set("b1", 3)
	c := New(NewLRU(16), revs, time.Minute, nil)

	req := testRequest("hobbit")
	c.Put(context.Background(), req, testResult("b1"))

	revs.set("b1", 0)
	if _, ok := c.Get(context.Background(), req); ok {
		t.Error("entry served after a contributing document was removed")
	}
}

func TestCacheMissAfterOffPageCandidateChanges(t *testing.T) {
	revs := newFakeRevisions()
	revs.set("b1", 3)
	revs.set("b2", 3)
	c := New(NewLRU(16), revs, time.Minute, nil)

	// Page holds b1 only; b2 was ranked but fell off the page.
	result := testResult("b1")
	result.CandidateIDs = []string{"b1", "b2"}
	req := testRequest("hobbit")
	c.Put(context.Background(), req, result)

	if _, ok := c.Get(context.Background(), req); !ok {
		t.Fatal("expected hit while all candidates are current")
	}

	// A bump on the off-page candidate could reorder the page.
	revs.set("b2", 4)
	if _, ok := c.Get(context.Background(), req); ok {
		t.Error("entry served after an off-page candidate changed")
	}
}

func TestCacheSkipsOversizedCandidateSets(t *testing.T) {
	revs := newFakeRevisions()
	backend := NewLRU(16)
	c := New(backend, revs, time.Minute, nil)

	result := testResult("b1")
	result.CandidateIDs = make([]string, maxTrackedDocs+1)
	for i := range result.CandidateIDs {
		result.CandidateIDs[i] = fmt.Sprintf("b%d", i)
	}
	c.Put(context.Background(), testRequest("the"), result)

	if backend.Len() != 0 {
		t.Errorf("oversized result was cached, %d entries resident", backend.Len())
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	revs := newFakeRevisions()
	revs.set("b1", 1)
	c := New(NewLRU(16), revs, 10*time.Millisecond, nil)

	req := testRequest("hobbit")
	c.Put(context.Background(), req, testResult("b1"))
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get(context.Background(), req); ok {
		t.Error("entry served past its TTL")
	}
}

func TestGetOrComputeSingleflight(t *testing.T) {
	revs := newFakeRevisions()
	revs.set("b1", 1)
	c := New(NewLRU(16), revs, time.Minute, nil)
	req := testRequest("hobbit")

	var computes int
	var mu sync.Mutex
	compute := func() (*search.Result, error) {
		mu.Lock()
		computes++
		mu.Unlock()
		return testResult("b1"), nil
	}

	for i := 0; i < 5; i++ {
		result, _, err := c.GetOrCompute(context.Background(), req, compute)
		if err != nil {
			t.Fatal(err)
		}
		if result.Results[0].DocumentID != "b1" {
			t.Fatalf("wrong result on call %d", i)
		}
	}
	if computes != 1 {
		t.Errorf("computed %d times, want 1", computes)
	}
}

func TestGetOrComputePropagatesError(t *testing.T) {
	revs := newFakeRevisions()
	c := New(NewLRU(16), revs, time.Minute, nil)
	wantErr := errors.New("index unavailable")

	_, _, err := c.GetOrCompute(context.Background(), testRequest("x"), func() (*search.Result, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestLRUEviction(t *testing.T) {
	backend := NewLRU(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		backend.Set(ctx, fmt.Sprintf("k%d", i), &Entry{CreatedAt: time.Now()}, 0)
	}
	if backend.Len() != 3 {
		t.Fatalf("resident entries = %d, want 3", backend.Len())
	}
	if _, ok := backend.Get(ctx, "k0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := backend.Get(ctx, "k4"); !ok {
		t.Error("newest entry evicted")
	}
}

func TestLRUInvalidateDocs(t *testing.T) {
	backend := NewLRU(16)
	ctx := context.Background()
	backend.Set(ctx, "k1", &Entry{DocIDs: []string{"b1", "b2"}, CreatedAt: time.Now()}, 0)
	backend.Set(ctx, "k2", &Entry{DocIDs: []string{"b3"}, CreatedAt: time.Now()}, 0)

	backend.InvalidateDocs(ctx, []string{"b2"})
	if _, ok := backend.Get(ctx, "k1"); ok {
		t.Error("entry referencing changed document survived")
	}
	if _, ok := backend.Get(ctx, "k2"); !ok {
		t.Error("unrelated entry was dropped")
	}
}

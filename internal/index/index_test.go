package index

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bookbridge/searchd/internal/catalog"
	"github.com/bookbridge/searchd/pkg/config"
	apperrors "github.com/bookbridge/searchd/pkg/errors"
)

func testIndex(t *testing.T) (*Index, *Builder) {
	t.Helper()
	cfg := config.IndexConfig{
		Shards:        4,
		PrefixMaxLen:  12,
		MinTokenLen:   2,
		FuzzyDistance: 2,
	}
	return New(cfg), NewBuilder(cfg)
}

func mustIndex(t *testing.T, idx *Index, b *Builder, rec *catalog.Record) {
	t.Helper()
	doc, err := b.Build(rec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upsert(doc); err != nil {
		t.Fatal(err)
	}
}

func TestUpsertAndExactLookup(t *testing.T) {
	idx, b := testIndex(t)
	mustIndex(t, idx, b, bookRecord("b1", 1, "The Hobbit", "J. R. R. Tolkien"))
	mustIndex(t, idx, b, bookRecord("b2", 2, "The Silmarillion", "J. R. R. Tolkien"))

	postings := idx.Lookup("hobbit", ModeExact)
	if len(postings) != 1 || postings[0].DocID != "b1" {
		t.Fatalf("hobbit postings = %v", postings)
	}

	byAuthor := idx.Lookup("tolkien", ModeExact)
	if len(byAuthor) != 2 {
		t.Fatalf("expected both books for tolkien, got %v", byAuthor)
	}
	// Merged postings come back sorted by document ID.
	if byAuthor[0].DocID != "b1" || byAuthor[1].DocID != "b2" {
		t.Errorf("postings not ordered by doc ID: %v", byAuthor)
	}
}

func TestUpsertRevisionGate(t *testing.T) {
	idx, b := testIndex(t)
	mustIndex(t, idx, b, bookRecord("b1", 5, "Original Title"))

	// A stale revision must be discarded entirely.
	stale, err := b.Build(bookRecord("b1", 3, "Stale Title"))
	if err != nil {
		t.Fatal(err)
	}
	applied, err := idx.Upsert(stale)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("stale upsert reported as applied")
	}
	if doc, _ := idx.Get("b1"); doc.Title != "Original Title" {
		t.Errorf("stale upsert replaced document: %q", doc.Title)
	}
	if got := idx.Lookup("stale", ModeExact); len(got) != 0 {
		t.Errorf("stale postings leaked: %v", got)
	}

	// Equal revision is a replay, also discarded.
	replay, _ := b.Build(bookRecord("b1", 5, "Original Title"))
	if applied, _ := idx.Upsert(replay); applied {
		t.Error("replay of resident revision reported as applied")
	}

	// A newer revision fully replaces the posting set.
	newer, _ := b.Build(bookRecord("b1", 6, "Renamed Entirely"))
	if applied, _ := idx.Upsert(newer); !applied {
		t.Fatal("newer revision not applied")
	}
	if got := idx.Lookup("original", ModeExact); len(got) != 0 {
		t.Errorf("old postings survived replacement: %v", got)
	}
	if got := idx.Lookup("renamed", ModeExact); len(got) != 1 {
		t.Errorf("new postings missing: %v", got)
	}
	if idx.Revision("b1") != 6 {
		t.Errorf("revision watermark = %d, want 6", idx.Revision("b1"))
	}
}

func TestUpsertReplayIdempotent(t *testing.T) {
	idx, b := testIndex(t)
	rec := bookRecord("b1", 2, "Brave New World", "Aldous Huxley")
	for i := 0; i < 3; i++ {
		doc, _ := b.Build(rec)
		idx.Upsert(doc)
	}
	if idx.DocCount() != 1 {
		t.Errorf("replay created duplicates: %d docs", idx.DocCount())
	}
	if got := idx.Lookup("brave", ModeExact); len(got) != 1 {
		t.Errorf("expected one posting after replay, got %v", got)
	}
}

func TestRemove(t *testing.T) {
	idx, b := testIndex(t)
	mustIndex(t, idx, b, bookRecord("b1", 1, "War and Peace", "Leo Tolstoy"))

	if err := idx.Remove("b1"); err != nil {
		t.Fatal(err)
	}
	if idx.DocCount() != 0 {
		t.Errorf("doc count = %d after remove", idx.DocCount())
	}
	if got := idx.Lookup("war", ModeExact); len(got) != 0 {
		t.Errorf("postings survived remove: %v", got)
	}
	if got := idx.Lookup("to", ModePrefix); len(got) != 0 {
		t.Errorf("prefix postings survived remove: %v", got)
	}
	if idx.Revision("b1") != 0 {
		t.Errorf("revision after remove = %d, want 0", idx.Revision("b1"))
	}

	err := idx.Remove("b1")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second remove: got %v, want not-found", err)
	}
}

func TestPrefixLookup(t *testing.T) {
	idx, b := testIndex(t)
	mustIndex(t, idx, b, bookRecord("b1", 1, "The Hobbit"))
	mustIndex(t, idx, b, bookRecord("b2", 2, "Hollow City"))
	mustIndex(t, idx, b, bookRecord("b3", 3, "Dune"))

	got := idx.Lookup("ho", ModePrefix)
	if len(got) != 2 {
		t.Fatalf("prefix 'ho' matched %v", got)
	}
	if got[0].DocID != "b1" || got[1].DocID != "b2" {
		t.Errorf("prefix postings not ordered: %v", got)
	}
	if got := idx.Lookup("hobb", ModePrefix); len(got) != 1 || got[0].DocID != "b1" {
		t.Errorf("prefix 'hobb' matched %v", got)
	}
}

// A one-edit typo must reach the intended title without dragging in terms
// that are edit-close but lexically unrelated.
func TestFuzzyLookupTypo(t *testing.T) {
	idx, b := testIndex(t)
	mustIndex(t, idx, b, bookRecord("b1", 1, "The Hobbit", "J. R. R. Tolkien"))
	mustIndex(t, idx, b, bookRecord("b2", 2, "Hobby Farming for Beginners"))

	variants := idx.FuzzyLookup("hobit", 2)
	if _, ok := variants["hobbit"]; !ok {
		t.Fatalf("typo did not reach 'hobbit': variants %v", variants)
	}
	if _, ok := variants["hobby"]; ok {
		t.Errorf("'hobby' matched a 'hobit' typo: variants %v", variants)
	}
}

func TestFuzzyLookupRespectsDistance(t *testing.T) {
	idx, b := testIndex(t)
	mustIndex(t, idx, b, bookRecord("b1", 1, "Solaris"))

	if variants := idx.FuzzyLookup("solarus", 2); len(variants) == 0 {
		t.Error("one edit away, expected a match")
	}
	if variants := idx.FuzzyLookup("lunar", 2); len(variants) != 0 {
		t.Errorf("unrelated token matched: %v", variants)
	}
}

func TestResetClearsEverything(t *testing.T) {
	idx, b := testIndex(t)
	for i := 0; i < 20; i++ {
		mustIndex(t, idx, b, bookRecord(fmt.Sprintf("b%d", i), uint64(i+1), fmt.Sprintf("Title %d", i)))
	}
	idx.Reset()
	if idx.DocCount() != 0 {
		t.Errorf("doc count after reset = %d", idx.DocCount())
	}
	if ids := idx.DocIDs(); len(ids) != 0 {
		t.Errorf("doc IDs after reset: %v", ids)
	}
	if got := idx.Lookup("title", ModeExact); len(got) != 0 {
		t.Errorf("postings after reset: %v", got)
	}
}

func TestConcurrentUpsertsAndLookups(t *testing.T) {
	idx, b := testIndex(t)
	docs := 200
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < docs; i++ {
				rec := bookRecord(fmt.Sprintf("w%d-b%d", worker, i), uint64(i+1),
					fmt.Sprintf("Concurrent Title %d", i), "Some Author")
				doc, err := b.Build(rec)
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := idx.Upsert(doc); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < docs; i++ {
			idx.Lookup("concurrent", ModeExact)
			idx.Lookup("au", ModePrefix)
		}
	}()
	wg.Wait()

	if idx.DocCount() != 4*docs {
		t.Errorf("doc count = %d, want %d", idx.DocCount(), 4*docs)
	}
	if got := idx.Lookup("author", ModeExact); len(got) != 4*docs {
		t.Errorf("author postings = %d, want %d", len(got), 4*docs)
	}
}

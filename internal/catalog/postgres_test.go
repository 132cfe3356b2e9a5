package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bookbridge/searchd/pkg/postgres"
)

// newTestStore connects to the database named by SEARCHD_TEST_POSTGRES_DSN
// or skips the test.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SEARCHD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SEARCHD_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}

	store, err := NewPostgresStore(ctx, &postgres.Client{DB: db})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func testBookRecord(id string) *Record {
	return &Record{
		ID:   id,
		Kind: KindBook,
		Attrs: Attributes{
			Title: "The Hobbit",
		},
	}
}

// TestPostgresConcurrentPutsNeverSkipRevisions drives parallel writers and
// verifies the change feed observes every committed write: revisions come
// out strictly ascending and no assigned revision is missing. With
// revision assignment not serialised against commit, a slow writer could
// commit revision N after a reader's cursor passed it, and ChangesSince
// would never return that record.
func TestPostgresConcurrentPutsNeverSkipRevisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	head, err := store.CurrentRevision(ctx)
	if err != nil {
		t.Fatal(err)
	}

	const writers = 8
	const putsPerWriter = 10
	prefix := fmt.Sprintf("revtest-%d-", time.Now().UnixNano())

	var (
		mu       sync.Mutex
		assigned = make(map[uint64]string, writers*putsPerWriter)
		wg       sync.WaitGroup
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < putsPerWriter; i++ {
				id := fmt.Sprintf("%sw%d-%d", prefix, w, i)
				rev, err := store.Put(ctx, testBookRecord(id))
				if err != nil {
					t.Errorf("put %s: %v", id, err)
					return
				}
				mu.Lock()
				assigned[rev] = id
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	// Walk the feed in small batches, the way the synchronizer does.
	seen := make(map[uint64]string, len(assigned))
	cursor := head
	var last uint64
	for {
		batch, err := store.ChangesSince(ctx, cursor, 7)
		if err != nil {
			t.Fatal(err)
		}
		if len(batch) == 0 {
			break
		}
		for _, rec := range batch {
			if rec.Revision <= last {
				t.Fatalf("revision %d not ascending after %d", rec.Revision, last)
			}
			last = rec.Revision
			if strings.HasPrefix(rec.ID, prefix) {
				seen[rec.Revision] = rec.ID
			}
		}
		cursor = batch[len(batch)-1].Revision
	}

	for rev, id := range assigned {
		if seen[rev] != id {
			t.Errorf("revision %d (%s) missing from the change feed", rev, id)
		}
	}
}

// TestPostgresCursorAfterPutObservesWrite checks the store contract: a
// cursor taken before a put must see that write on the very next
// ChangesSince call.
func TestPostgresCursorAfterPutObservesWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cursor, err := store.CurrentRevision(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := fmt.Sprintf("cursortest-%d", time.Now().UnixNano())
	rev, err := store.Put(ctx, testBookRecord(id))
	if err != nil {
		t.Fatal(err)
	}

	batch, err := store.ChangesSince(ctx, cursor, 1000)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range batch {
		if rec.ID == id && rec.Revision == rev {
			return
		}
	}
	t.Fatalf("write %s@%d not visible from cursor %d", id, rev, cursor)
}

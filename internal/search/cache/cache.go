package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bookbridge/searchd/internal/search"
	"github.com/bookbridge/searchd/pkg/metrics"
)

// RevisionSource reports the current revision of a document, 0 when the
// document is gone. The index itself serves as the revision watermark.
type RevisionSource interface {
	Revision(id string) uint64
}

// Entry is one cached ranked result plus the revision bookkeeping needed
// to decide whether it is still current.
type Entry struct {
	Result      *search.Result `json:"result"`
	DocIDs      []string       `json:"doc_ids"`
	MaxRevision uint64         `json:"max_revision"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Backend stores entries under a TTL. Implementations: in-process LRU and
// Redis.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	// InvalidateDocs proactively drops entries referencing any of the
	// given document IDs. Best effort: correctness rests on the
	// revision check in Get, not on this.
	InvalidateDocs(ctx context.Context, ids []string)
	InvalidateAll(ctx context.Context) error
}

// QueryCache fronts a Backend with the revision-watermark validity check
// and singleflight stampede control.
type QueryCache struct {
	backend Backend
	revs    RevisionSource
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache over the given backend.
func New(backend Backend, revs RevisionSource, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		revs:    revs,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for req only if the entry is within its
// TTL and no contributing document has advanced past the entry's max
// revision. Anything else is a miss.
func (c *QueryCache) Get(ctx context.Context, req *search.Request) (*search.Result, bool) {
	key := Fingerprint(req)
	entry, ok := c.backend.Get(ctx, key)
	if !ok {
		return c.miss(), false
	}
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		c.backend.Delete(ctx, key)
		return c.miss(), false
	}
	for _, id := range entry.DocIDs {
		if current := c.revs.Revision(id); current == 0 || current > entry.MaxRevision {
			c.backend.Delete(ctx, key)
			c.logger.Debug("cache entry invalidated by revision",
				"key", key,
				"doc_id", id,
				"entry_rev", entry.MaxRevision,
			)
			return c.miss(), false
		}
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return entry.Result, true
}

// maxTrackedDocs bounds how many contributing documents one entry may
// carry. Past it the result is served uncached: truncating the set would
// let an untracked document change invisibly, and entries that large are
// cheap to recompute relative to checking thousands of revisions per hit.
const maxTrackedDocs = 4096

// Put stores the result keyed to every document that contributed to it.
// The full ranked candidate set is tracked, not just the returned page: a
// revision bump on an off-page candidate can reorder the page, so it must
// invalidate the entry too.
func (c *QueryCache) Put(ctx context.Context, req *search.Request, result *search.Result) {
	docIDs := result.CandidateIDs
	if len(docIDs) == 0 {
		docIDs = make([]string, 0, len(result.Results))
		for _, hit := range result.Results {
			docIDs = append(docIDs, hit.DocumentID)
		}
	}
	if len(docIDs) > maxTrackedDocs {
		c.logger.Debug("result too wide to cache", "candidates", len(docIDs))
		return
	}
	var maxRev uint64
	for _, id := range docIDs {
		if rev := c.revs.Revision(id); rev > maxRev {
			maxRev = rev
		}
	}
	c.backend.Set(ctx, Fingerprint(req), &Entry{
		Result:      result,
		DocIDs:      docIDs,
		MaxRevision: maxRev,
		CreatedAt:   time.Now().UTC(),
	}, c.ttl)
}

// GetOrCompute returns the cached result or computes, caches, and returns
// a fresh one. Concurrent identical misses share one computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req *search.Request,
	computeFn func() (*search.Result, error),
) (*search.Result, bool, error) {
	if result, ok := c.Get(ctx, req); ok {
		return result, true, nil
	}
	key := Fingerprint(req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, req); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Put(ctx, req, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*search.Result), false, nil
}

// InvalidateDocs forwards a change notification to the backend.
func (c *QueryCache) InvalidateDocs(ctx context.Context, ids []string) {
	c.backend.InvalidateDocs(ctx, ids)
}

// Stats returns cumulative hit and miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() *search.Result {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return nil
}

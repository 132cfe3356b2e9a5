package index

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bookbridge/searchd/pkg/config"
	"github.com/bookbridge/searchd/pkg/errors"
)

// Index is the sharded in-memory inverted index. Documents are routed to
// shards by ID hash, so upserts of independent documents proceed without
// contention while searches fan out over every shard and merge.
type Index struct {
	shards []*shard
	cfg    config.IndexConfig
}

// New creates an Index with cfg.Shards shards.
func New(cfg config.IndexConfig) *Index {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.FuzzyDistance <= 0 {
		cfg.FuzzyDistance = 2
	}
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = newShard()
	}
	return &Index{shards: shards, cfg: cfg}
}

func (idx *Index) shardFor(docID string) *shard {
	return idx.shards[xxhash.Sum64String(docID)%uint64(len(idx.shards))]
}

// Upsert replaces all postings for the document's ID. The new posting set
// is built fully before the shard lock is taken, so readers never observe
// a half-updated document. An upsert carrying a revision not newer than
// the resident document is discarded. Returns whether the index changed.
func (idx *Index) Upsert(doc *Document) (bool, error) {
	if doc == nil {
		return false, errors.Validationf("document is nil")
	}
	if strings.TrimSpace(doc.ID) == "" {
		return false, errors.Validationf("document has no ID")
	}
	if doc.Revision == 0 {
		return false, errors.Validationf("document %s has no revision", doc.ID)
	}
	postings := buildPostings(doc)
	return idx.shardFor(doc.ID).upsert(doc, postings), nil
}

// Remove deletes the document and all its postings. Removing an unknown ID
// is a no-op reported as a not-found error; existing postings are never
// touched.
func (idx *Index) Remove(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.Validationf("document ID is empty")
	}
	if !idx.shardFor(id).remove(id) {
		return errors.Newf(errors.ErrNotFound, 404, "document %s not indexed", id)
	}
	return nil
}

// Get returns the resident document for the given ID.
func (idx *Index) Get(id string) (*Document, bool) {
	return idx.shardFor(id).get(id)
}

// Revision returns the resident revision for the given document ID, or 0
// when the document is not indexed. This is the per-document watermark the
// cache checks entries against.
func (idx *Index) Revision(id string) uint64 {
	doc, ok := idx.shardFor(id).get(id)
	if !ok {
		return 0
	}
	return doc.Revision
}

// Lookup returns the merged postings for token under the given mode,
// ordered by document ID for deterministic downstream ranking. Fuzzy mode
// ORs the postings of every matching variant; use FuzzyLookup to keep the
// variants separate.
func (idx *Index) Lookup(token string, mode Mode) PostingList {
	var merged PostingList
	switch mode {
	case ModeExact:
		for _, sh := range idx.shards {
			merged = append(merged, sh.lookupExact(token)...)
		}
	case ModePrefix:
		for _, sh := range idx.shards {
			merged = append(merged, sh.lookupPrefix(token)...)
		}
	case ModeFuzzy:
		for _, postings := range idx.FuzzyLookup(token, idx.cfg.FuzzyDistance) {
			merged = append(merged, postings...)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].DocID < merged[j].DocID
	})
	return merged
}

// FuzzyLookup finds resident terms within maxDist edits of token via the
// per-shard n-gram candidate index and returns each variant's merged
// postings, keyed by variant.
func (idx *Index) FuzzyLookup(token string, maxDist int) map[string]PostingList {
	if maxDist <= 0 {
		maxDist = idx.cfg.FuzzyDistance
	}
	variants := make(map[string]struct{})
	for _, sh := range idx.shards {
		for _, candidate := range sh.fuzzyCandidates(token, maxDist) {
			if _, seen := variants[candidate]; seen {
				continue
			}
			if BoundedLevenshtein(token, candidate, maxDist) <= maxDist {
				variants[candidate] = struct{}{}
			}
		}
	}

	result := make(map[string]PostingList, len(variants))
	for variant := range variants {
		var merged PostingList
		for _, sh := range idx.shards {
			merged = append(merged, sh.lookupExact(variant)...)
		}
		if len(merged) > 0 {
			sort.Slice(merged, func(i, j int) bool {
				return merged[i].DocID < merged[j].DocID
			})
			result[variant] = merged
		}
	}
	return result
}

// HasTerm reports whether any shard holds postings for the exact token.
func (idx *Index) HasTerm(token string) bool {
	for _, sh := range idx.shards {
		sh.mu.RLock()
		_, ok := sh.postings[token]
		sh.mu.RUnlock()
		if ok {
			return true
		}
	}
	return false
}

// DocCount returns the number of resident documents.
func (idx *Index) DocCount() int {
	total := 0
	for _, sh := range idx.shards {
		total += sh.docCount()
	}
	return total
}

// DocIDs returns a snapshot of every resident document ID. Used by the
// reconciliation pass.
func (idx *Index) DocIDs() []string {
	var ids []string
	for _, sh := range idx.shards {
		ids = append(ids, sh.docIDs()...)
	}
	sort.Strings(ids)
	return ids
}

// Scan calls fn for every resident document, shard by shard. fn runs under
// the shard read lock and must not call back into the index.
func (idx *Index) Scan(fn func(doc *Document)) {
	for _, sh := range idx.shards {
		sh.mu.RLock()
		for _, doc := range sh.docs {
			fn(doc)
		}
		sh.mu.RUnlock()
	}
}

// Reset drops every document and posting, returning the index to its
// post-construction state. Used by full rebuilds.
func (idx *Index) Reset() {
	for _, sh := range idx.shards {
		sh.reset()
	}
}

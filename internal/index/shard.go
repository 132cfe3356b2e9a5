package index

import (
	"sort"
	"strings"
	"sync"
)

// shard owns a disjoint slice of the document-ID space. All maps are
// guarded by mu; reads take the read lock so queries never block each
// other, and upserts of independent documents only contend when they hash
// to the same shard.
type shard struct {
	mu       sync.RWMutex
	docs     map[string]*Document
	postings map[string]map[string]*Posting // term -> docID -> posting
	prefixes map[string]map[string]struct{} // prefix -> docID set
	grams    map[string]map[string]struct{} // n-gram -> candidate terms
}

func newShard() *shard {
	return &shard{
		docs:     make(map[string]*Document),
		postings: make(map[string]map[string]*Posting),
		prefixes: make(map[string]map[string]struct{}),
		grams:    make(map[string]map[string]struct{}),
	}
}

// buildPostings aggregates a document's terms into per-term postings. It
// runs before any lock is taken so the shard mutation under the write lock
// is a plain set of map inserts, never a partially-built posting.
func buildPostings(doc *Document) map[string]*Posting {
	postings := make(map[string]*Posting, len(doc.Terms))
	for _, term := range doc.Terms {
		p := postings[term.Text]
		if p == nil {
			p = &Posting{DocID: doc.ID}
			postings[term.Text] = p
		}
		switch term.Field {
		case FieldTitle:
			p.TitleFreq += term.Frequency
		case FieldContributor:
			p.ContributorFreq += term.Frequency
		case FieldISBN:
			p.ISBNFreq += term.Frequency
		}
	}
	return postings
}

// upsert replaces the document and all its postings. A document carrying a
// revision older than (or equal to) the resident one is discarded:
// last-writer-wins by revision, and replaying the same revision is a
// no-op.
func (sh *shard) upsert(doc *Document, newPostings map[string]*Posting) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	old, exists := sh.docs[doc.ID]
	if exists && old.Revision >= doc.Revision {
		return false
	}
	if exists {
		sh.removeLocked(old)
	}

	sh.docs[doc.ID] = doc
	for term, posting := range newPostings {
		docMap := sh.postings[term]
		if docMap == nil {
			docMap = make(map[string]*Posting)
			sh.postings[term] = docMap
			sh.addTermGrams(term)
		}
		docMap[doc.ID] = posting
	}
	for _, prefix := range doc.Prefixes {
		set := sh.prefixes[prefix]
		if set == nil {
			set = make(map[string]struct{})
			sh.prefixes[prefix] = set
		}
		set[doc.ID] = struct{}{}
	}
	return true
}

// remove deletes the document and every posting referencing it. Tombstones
// are not retained.
func (sh *shard) remove(id string) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	doc, exists := sh.docs[id]
	if !exists {
		return false
	}
	sh.removeLocked(doc)
	return true
}

func (sh *shard) removeLocked(doc *Document) {
	seen := make(map[string]struct{}, len(doc.Terms))
	for _, term := range doc.Terms {
		if _, done := seen[term.Text]; done {
			continue
		}
		seen[term.Text] = struct{}{}
		docMap := sh.postings[term.Text]
		delete(docMap, doc.ID)
		if len(docMap) == 0 {
			delete(sh.postings, term.Text)
			sh.removeTermGrams(term.Text)
		}
	}
	for _, prefix := range doc.Prefixes {
		set := sh.prefixes[prefix]
		delete(set, doc.ID)
		if len(set) == 0 {
			delete(sh.prefixes, prefix)
		}
	}
	delete(sh.docs, doc.ID)
}

func (sh *shard) addTermGrams(term string) {
	for _, gram := range termGrams(term) {
		terms := sh.grams[gram]
		if terms == nil {
			terms = make(map[string]struct{})
			sh.grams[gram] = terms
		}
		terms[term] = struct{}{}
	}
}

func (sh *shard) removeTermGrams(term string) {
	for _, gram := range termGrams(term) {
		terms := sh.grams[gram]
		delete(terms, term)
		if len(terms) == 0 {
			delete(sh.grams, gram)
		}
	}
}

// lookupExact returns a copy of the postings for the exact token.
func (sh *shard) lookupExact(token string) PostingList {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	docMap := sh.postings[token]
	if len(docMap) == 0 {
		return nil
	}
	result := make(PostingList, 0, len(docMap))
	for _, p := range docMap {
		result = append(result, *p)
	}
	return result
}

// lookupPrefix returns one aggregated posting per document whose prefix
// set contains token, with frequencies summed over the document's terms
// that extend the prefix.
func (sh *shard) lookupPrefix(token string) PostingList {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	set := sh.prefixes[token]
	if len(set) == 0 {
		return nil
	}
	result := make(PostingList, 0, len(set))
	for docID := range set {
		doc := sh.docs[docID]
		if doc == nil {
			continue
		}
		agg := Posting{DocID: docID}
		for _, term := range doc.Terms {
			if !strings.HasPrefix(term.Text, token) {
				continue
			}
			switch term.Field {
			case FieldTitle:
				agg.TitleFreq += term.Frequency
			case FieldContributor:
				agg.ContributorFreq += term.Frequency
			case FieldISBN:
				agg.ISBNFreq += term.Frequency
			}
		}
		result = append(result, agg)
	}
	return result
}

// fuzzyCandidates returns resident terms that share a strict majority of
// token's n-grams, pre-filtered by the length bound. The gram-coverage
// requirement keeps unrelated short stems (e.g. "hobby" for "hobbit") out
// of the candidate list, and the list stays short enough that the
// Levenshtein check never scans the whole vocabulary.
func (sh *shard) fuzzyCandidates(token string, maxDist int) []string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	grams := termGrams(token)
	overlap := make(map[string]int)
	for _, gram := range grams {
		for term := range sh.grams[gram] {
			if abs(len(term)-len(token)) > maxDist {
				continue
			}
			overlap[term]++
		}
	}
	candidates := make([]string, 0, len(overlap))
	for term, shared := range overlap {
		if 2*shared > len(grams) {
			candidates = append(candidates, term)
		}
	}
	sort.Strings(candidates)
	return candidates
}

func (sh *shard) get(id string) (*Document, bool) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	doc, ok := sh.docs[id]
	return doc, ok
}

func (sh *shard) docCount() int {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.docs)
}

func (sh *shard) docIDs() []string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ids := make([]string, 0, len(sh.docs))
	for id := range sh.docs {
		ids = append(ids, id)
	}
	return ids
}

func (sh *shard) reset() {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.docs = make(map[string]*Document)
	sh.postings = make(map[string]map[string]*Posting)
	sh.prefixes = make(map[string]map[string]struct{})
	sh.grams = make(map[string]map[string]struct{})
}

// termGrams returns the trigram set of a term. Terms shorter than three
// runes contribute themselves as a single gram.
func termGrams(term string) []string {
	runes := []rune(term)
	if len(runes) <= 3 {
		return []string{term}
	}
	grams := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+3]))
	}
	return grams
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package search

import (
	"github.com/bookbridge/searchd/internal/index"
)

// candidate pairs a matched document with its accumulated text relevance.
type candidate struct {
	doc       *index.Document
	textScore float64
}

// execute runs the plan against the index: per-term posting lookups,
// AND-intersection across terms, facet filtering, and per-document partial
// text scores (term frequency weighted by field, title above contributor).
func (s *Searcher) execute(plan *Plan, filters Filters) map[string]*candidate {
	perTerm := make([]map[string]float64, 0, len(plan.Terms))
	for _, tp := range plan.Terms {
		scores := make(map[string]float64)
		switch tp.Mode {
		case index.ModeExact:
			for _, p := range s.idx.Lookup(tp.Term, index.ModeExact) {
				scores[p.DocID] += s.postingScore(p)
			}
		case index.ModeFuzzy:
			// OR across variants of one term: a document matching
			// several variants keeps its best variant's score.
			for variant, postings := range s.idx.FuzzyLookup(tp.Term, s.fuzzyDistance) {
				dist := index.BoundedLevenshtein(tp.Term, variant, s.fuzzyDistance)
				penalty := 1.0 / float64(1+dist)
				for _, p := range postings {
					score := s.postingScore(p) * penalty
					if score > scores[p.DocID] {
						scores[p.DocID] = score
					}
				}
			}
		}
		perTerm = append(perTerm, scores)
	}

	candidates := make(map[string]*candidate)
	if len(perTerm) > 0 {
		for docID, score := range intersectTerms(perTerm) {
			doc, ok := s.idx.Get(docID)
			if !ok {
				continue
			}
			candidates[docID] = &candidate{doc: doc, textScore: score}
		}
	} else {
		// No text terms: the candidate set is the whole index, scored
		// purely on facets.
		s.idx.Scan(func(doc *index.Document) {
			candidates[doc.ID] = &candidate{doc: doc}
		})
	}

	if !filters.Empty() {
		for docID, cand := range candidates {
			if !matchesFilters(cand.doc, filters) {
				delete(candidates, docID)
			}
		}
	}
	return candidates
}

// postingScore is the field-weighted term frequency of one posting.
func (s *Searcher) postingScore(p index.Posting) float64 {
	return float64(p.TitleFreq)*s.cfg.TitleBoost +
		float64(p.ContributorFreq) +
		float64(p.ISBNFreq)*s.cfg.TitleBoost
}

// intersectTerms ANDs the per-term score maps, starting from the smallest
// map, summing scores for documents present in every map.
func intersectTerms(perTerm []map[string]float64) map[string]float64 {
	smallest := 0
	for i, m := range perTerm {
		if len(m) < len(perTerm[smallest]) {
			smallest = i
		}
	}

	result := make(map[string]float64, len(perTerm[smallest]))
	for docID, score := range perTerm[smallest] {
		total := score
		inAll := true
		for i, m := range perTerm {
			if i == smallest {
				continue
			}
			other, ok := m[docID]
			if !ok {
				inAll = false
				break
			}
			total += other
		}
		if inAll {
			result[docID] = total
		}
	}
	return result
}

func matchesFilters(doc *index.Document, f Filters) bool {
	if f.Genre != "" && !containsString(doc.Genres, f.Genre) {
		return false
	}
	if f.Language != "" && doc.Language != f.Language {
		return false
	}
	if f.YearMin > 0 && (doc.Year == 0 || doc.Year < f.YearMin) {
		return false
	}
	if f.YearMax > 0 && (doc.Year == 0 || doc.Year > f.YearMax) {
		return false
	}
	if f.MinRating > 0 && doc.Rating < f.MinRating {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

package search

import (
	"time"

	"github.com/bookbridge/searchd/internal/index"
)

// TermPlan is the lookup decision for one query term. Exact is tried
// first; a term with zero exact postings falls back to fuzzy variants,
// unless the request's fuzzy budget is already spent.
type TermPlan struct {
	Term     string
	Mode     index.Mode
	Variants []string
}

// Plan is the per-request execution plan: AND semantics across terms, OR
// semantics across the fuzzy variants of a single term.
type Plan struct {
	Terms           []TermPlan
	FuzzyDowngraded bool
}

// plan probes the index per term. deadline bounds the fuzzy work: once it
// passes, remaining zero-hit terms stay exact-only.
func (s *Searcher) plan(req *Request, deadline time.Time) *Plan {
	p := &Plan{Terms: make([]TermPlan, 0, len(req.Terms))}
	for _, term := range req.Terms {
		tp := TermPlan{Term: term, Mode: index.ModeExact}
		if !s.idx.HasTerm(term) {
			if time.Now().Before(deadline) {
				tp.Mode = index.ModeFuzzy
			} else {
				p.FuzzyDowngraded = true
			}
		}
		p.Terms = append(p.Terms, tp)
	}
	return p
}

package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bookbridge/searchd/internal/index"
	"github.com/bookbridge/searchd/internal/index/tokenizer"
	"github.com/bookbridge/searchd/pkg/config"
	"github.com/bookbridge/searchd/pkg/metrics"
	"github.com/bookbridge/searchd/pkg/tracing"
)

// sortPopularity is the internal ordering for the empty-query browse path;
// it is not accepted on the wire.
const sortPopularity Sort = "popularity"

// StalenessReporter exposes how far the index lags the catalog store. The
// synchronizer implements it.
type StalenessReporter interface {
	Staleness() time.Duration
}

// Result is a ranked, paginated search response.
type Result struct {
	Request       *Request `json:"request"`
	Results       []Hit    `json:"results"`
	TotalEstimate int      `json:"total_estimate"`
	TookMillis    int64    `json:"took_millis"`
	Stale         bool     `json:"stale,omitempty"`

	// CandidateIDs holds every ranked document, not just the returned
	// page. The query cache uses it to notice when an off-page candidate
	// changes and would reorder the page. Never serialized.
	CandidateIDs []string `json:"-"`
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
}

// Searcher runs the search pipeline against a live index.
type Searcher struct {
	idx           *index.Index
	cfg           config.SearchConfig
	fuzzyDistance int
	staleness     StalenessReporter
	stalenessMax  time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Options carries the optional collaborators of a Searcher.
type Options struct {
	Staleness      StalenessReporter
	StalenessBound time.Duration
	Metrics        *metrics.Metrics
}

// New creates a Searcher over idx.
func New(idx *index.Index, searchCfg config.SearchConfig, indexCfg config.IndexConfig, opts Options) *Searcher {
	return &Searcher{
		idx:           idx,
		cfg:           searchCfg,
		fuzzyDistance: indexCfg.FuzzyDistance,
		staleness:     opts.Staleness,
		stalenessMax:  opts.StalenessBound,
		metrics:       opts.Metrics,
		logger:        slog.Default().With("component", "searcher"),
	}
}

// Search executes the full pipeline for a parsed request. The context is
// checked between stages so an abandoned request stops early; no exclusive
// resources are held across stages.
func (s *Searcher) Search(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	deadline := start.Add(s.cfg.FuzzyBudget)
	_, planSpan := tracing.StartChildSpan(ctx, "plan")
	plan := s.plan(req, deadline)
	planSpan.SetAttr("terms", len(plan.Terms))
	planSpan.End()
	if plan.FuzzyDowngraded && s.metrics != nil {
		s.metrics.FuzzyDowngradesTotal.Inc()
	}
	if err := ctx.Err(); err != nil {
		s.observe(start, "error")
		return nil, fmt.Errorf("search abandoned after planning: %w", err)
	}

	_, execSpan := tracing.StartChildSpan(ctx, "execute")
	candidates := s.execute(plan, req.Filters)
	execSpan.SetAttr("candidates", len(candidates))
	execSpan.End()
	if err := ctx.Err(); err != nil {
		s.observe(start, "error")
		return nil, fmt.Errorf("search abandoned after execution: %w", err)
	}

	sortMode := req.Sort
	// An empty query has no text relevance signal; browsing falls back
	// to popularity ordering unless an explicit sort was requested.
	if len(req.Terms) == 0 && sortMode == SortRelevance {
		sortMode = sortPopularity
	}
	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	hits := s.rank(candidates, sortMode)
	rankSpan.End()
	if err := ctx.Err(); err != nil {
		s.observe(start, "error")
		return nil, fmt.Errorf("search abandoned after ranking: %w", err)
	}

	result := &Result{
		Request:       req,
		Results:       paginate(hits, req.Page, req.PageSize),
		TotalEstimate: len(hits),
		TookMillis:    time.Since(start).Milliseconds(),
		CandidateIDs:  candidateIDs(hits),
	}
	outcome := "ok"
	if len(hits) == 0 {
		outcome = "zero_result"
	}
	s.observe(start, outcome)

	if s.staleness != nil && s.stalenessMax > 0 {
		if age := s.staleness.Staleness(); age > s.stalenessMax {
			result.Stale = true
			s.logger.Warn("serving stale result",
				"staleness", age,
				"bound", s.stalenessMax,
			)
			if s.metrics != nil {
				s.metrics.StalenessWarnings.Inc()
			}
		}
	}
	return result, nil
}

func (s *Searcher) observe(start time.Time, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	s.metrics.SearchLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func candidateIDs(hits []Hit) []string {
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.DocumentID)
	}
	return ids
}

// Suggest serves autocomplete purely from the prefix postings: documents
// whose prefix set contains the folded input, ordered by popularity
// descending with document-ID tie-breaks.
func (s *Searcher) Suggest(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	tokens := tokenizer.Tokenize(prefix)
	if len(tokens) == 0 {
		return []Suggestion{}, nil
	}
	if s.metrics != nil {
		s.metrics.SuggestQueriesTotal.Inc()
	}

	type scored struct {
		doc        *index.Document
		popularity float64
	}
	var matches []scored
	for _, p := range s.idx.Lookup(tokens[len(tokens)-1], index.ModePrefix) {
		doc, ok := s.idx.Get(p.DocID)
		if !ok {
			continue
		}
		matches = append(matches, scored{doc: doc, popularity: doc.Popularity})
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("suggest abandoned: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].popularity != matches[j].popularity {
			return matches[i].popularity > matches[j].popularity
		}
		return matches[i].doc.ID < matches[j].doc.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	suggestions := make([]Suggestion, 0, len(matches))
	for _, m := range matches {
		suggestions = append(suggestions, Suggestion{
			Text:       m.doc.Title,
			DocumentID: m.doc.ID,
		})
	}
	return suggestions, nil
}

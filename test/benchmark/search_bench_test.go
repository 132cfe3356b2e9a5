package benchmark

import (
	"context"
	"testing"
	"time"

	"github.com/bookbridge/searchd/internal/search"
	"github.com/bookbridge/searchd/pkg/config"
)

func benchSearcher(b *testing.B) *search.Searcher {
	b.Helper()
	idx := preloadedIndex(b, 10000)
	return search.New(idx, config.SearchConfig{
		DefaultPageSize:  20,
		MaxPageSize:      100,
		FuzzyBudget:      50 * time.Millisecond,
		TextWeight:       0.6,
		PopularityWeight: 0.25,
		RecencyWeight:    0.15,
		TitleBoost:       2.0,
	}, benchConfig(), search.Options{})
}

func benchRequest(b *testing.B, query string) *search.Request {
	b.Helper()
	req, err := search.ParseRequest(search.RawQuery{Query: query}, config.SearchConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
	})
	if err != nil {
		b.Fatal(err)
	}
	return req
}

// BenchmarkSearchExact measures the full pipeline for a two-term exact
// query over 10 000 documents.
func BenchmarkSearchExact(b *testing.B) {
	s := benchSearcher(b)
	req := benchRequest(b, "benchmark history")
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchFuzzy measures the pipeline when a term needs the fuzzy
// fallback.
func BenchmarkSearchFuzzy(b *testing.B) {
	s := benchSearcher(b)
	req := benchRequest(b, "benchmkar history")
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSuggest measures autocomplete latency.
func BenchmarkSuggest(b *testing.B) {
	s := benchSearcher(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Suggest(ctx, "hist", 10); err != nil {
			b.Fatal(err)
		}
	}
}

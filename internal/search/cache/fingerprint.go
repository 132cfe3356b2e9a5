// Package cache holds hot ranked results keyed by query fingerprint. A
// cached entry is only served while every contributing document's revision
// is still current, so the cache is a pure performance optimization: it
// can never make a result more stale than the configured TTL bound.
package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bookbridge/searchd/internal/search"
)

const keyPrefix = "search:"

// Fingerprint canonically encodes a request's semantic content. Two
// requests that mean the same thing map to the same fingerprint: terms are
// sorted and de-duplicated and filters appear in a fixed order.
func Fingerprint(req *search.Request) string {
	terms := make([]string, 0, len(req.Terms))
	seen := make(map[string]struct{}, len(req.Terms))
	for _, t := range req.Terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	sort.Strings(terms)

	canonical := fmt.Sprintf("t=%s|g=%s|l=%s|y=%d-%d|r=%g|s=%s|p=%d.%d",
		strings.Join(terms, ","),
		req.Filters.Genre,
		req.Filters.Language,
		req.Filters.YearMin,
		req.Filters.YearMax,
		req.Filters.MinRating,
		req.Sort,
		req.Page,
		req.PageSize,
	)
	return fmt.Sprintf("%s%016x", keyPrefix, xxhash.Sum64String(canonical))
}

// Package search implements the query pipeline: Parse -> Plan -> Execute ->
// Rank -> Paginate over the inverted index, plus prefix-fed autocomplete.
package search

import (
	"strconv"
	"strings"

	"github.com/bookbridge/searchd/internal/index/tokenizer"
	"github.com/bookbridge/searchd/pkg/config"
	"github.com/bookbridge/searchd/pkg/errors"
)

// Sort selects the result ordering.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortYear      Sort = "year"
	SortRating    Sort = "rating"
)

// RawQuery carries the untyped request parameters as received on the wire.
// ParseRequest validates and types them.
type RawQuery struct {
	Query     string
	Genre     string
	Language  string
	YearMin   string
	YearMax   string
	MinRating string
	Sort      string
	Page      string
	PageSize  string
}

// Filters are the structured facet constraints of a request. Zero values
// mean "unset".
type Filters struct {
	Genre     string  `json:"genre,omitempty"`
	Language  string  `json:"language,omitempty"`
	YearMin   int     `json:"year_min,omitempty"`
	YearMax   int     `json:"year_max,omitempty"`
	MinRating float64 `json:"min_rating,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f == Filters{}
}

// Request is a parsed, validated search request.
type Request struct {
	Terms    []string `json:"terms"`
	Filters  Filters  `json:"filters"`
	Sort     Sort     `json:"sort"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// ParseRequest validates raw parameters into a Request. Malformed filter
// values yield a Bad-Request classified validation error; an empty query
// is legal and handled downstream.
func ParseRequest(raw RawQuery, cfg config.SearchConfig) (*Request, error) {
	req := &Request{
		Terms:    tokenizer.Tokenize(raw.Query),
		Sort:     SortRelevance,
		Page:     1,
		PageSize: cfg.DefaultPageSize,
	}

	req.Filters.Genre = tokenizer.Fold(strings.TrimSpace(raw.Genre))
	req.Filters.Language = tokenizer.Fold(strings.TrimSpace(raw.Language))

	var err error
	if req.Filters.YearMin, err = parseIntParam("yearMin", raw.YearMin); err != nil {
		return nil, err
	}
	if req.Filters.YearMax, err = parseIntParam("yearMax", raw.YearMax); err != nil {
		return nil, err
	}
	if req.Filters.YearMin > 0 && req.Filters.YearMax > 0 && req.Filters.YearMin > req.Filters.YearMax {
		return nil, errors.Validationf("yearMin %d exceeds yearMax %d", req.Filters.YearMin, req.Filters.YearMax)
	}
	if raw.MinRating != "" {
		rating, err := strconv.ParseFloat(raw.MinRating, 64)
		if err != nil {
			return nil, errors.Validationf("minRating %q is not a number", raw.MinRating)
		}
		if rating < 0 || rating > 5 {
			return nil, errors.Validationf("minRating %v out of range [0, 5]", rating)
		}
		req.Filters.MinRating = rating
	}

	if raw.Sort != "" {
		switch Sort(raw.Sort) {
		case SortRelevance, SortYear, SortRating:
			req.Sort = Sort(raw.Sort)
		default:
			return nil, errors.Validationf("unknown sort %q", raw.Sort)
		}
	}

	if raw.Page != "" {
		page, err := strconv.Atoi(raw.Page)
		if err != nil || page < 1 {
			return nil, errors.Validationf("page must be a positive integer")
		}
		req.Page = page
	}
	if raw.PageSize != "" {
		size, err := strconv.Atoi(raw.PageSize)
		if err != nil || size < 1 {
			return nil, errors.Validationf("pageSize must be a positive integer")
		}
		if size > cfg.MaxPageSize {
			size = cfg.MaxPageSize
		}
		req.PageSize = size
	}

	return req, nil
}

func parseIntParam(name, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Validationf("%s %q is not a number", name, value)
	}
	if n < 0 {
		return 0, errors.Validationf("%s must not be negative", name)
	}
	return n, nil
}

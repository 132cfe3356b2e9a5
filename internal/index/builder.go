package index

import (
	"math"
	"sort"
	"strings"

	"github.com/bookbridge/searchd/internal/catalog"
	"github.com/bookbridge/searchd/internal/index/tokenizer"
	"github.com/bookbridge/searchd/pkg/config"
	"github.com/bookbridge/searchd/pkg/errors"
)

// ratingCountScale caps the logarithmic rating-count contribution; beyond
// ten million ratings popularity saturates.
const ratingCountScale = 1e7

// Builder transforms catalog records into index documents. Build is a pure
// function: the same record revision always yields an identical document,
// which is what makes re-indexing idempotent and replay safe.
type Builder struct {
	cfg config.IndexConfig
}

// NewBuilder creates a Builder with the given index configuration.
func NewBuilder(cfg config.IndexConfig) *Builder {
	if cfg.MinTokenLen <= 0 {
		cfg.MinTokenLen = tokenizer.MinTokenLength
	}
	if cfg.PrefixMaxLen <= 0 {
		cfg.PrefixMaxLen = 12
	}
	return &Builder{cfg: cfg}
}

// Build tokenizes the record's searchable fields, derives the autocomplete
// prefix set, and computes the static popularity facet.
func (b *Builder) Build(rec *catalog.Record) (*Document, error) {
	if rec == nil {
		return nil, errors.Validationf("record is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, errors.Validationf("record has no ID")
	}
	if !catalog.ValidKind(rec.Kind) {
		return nil, errors.Validationf("record %s has unknown kind %q", rec.ID, rec.Kind)
	}

	doc := &Document{
		ID:           rec.ID,
		Kind:         rec.Kind,
		Revision:     rec.Revision,
		Title:        rec.Attrs.Title,
		Contributors: append([]string(nil), rec.Attrs.Contributors...),
		Year:         rec.Attrs.PublishYear,
		Language:     tokenizer.Fold(rec.Attrs.Language),
		Rating:       rec.Attrs.RatingAverage,
		RatingCount:  rec.Attrs.RatingCount,
		Popularity:   popularity(rec.Attrs),
	}

	for _, subject := range rec.Attrs.Subjects {
		doc.Genres = append(doc.Genres, tokenizer.Fold(subject))
	}
	sort.Strings(doc.Genres)

	titleText := rec.Attrs.Title
	if rec.Attrs.Subtitle != "" {
		titleText += " " + rec.Attrs.Subtitle
	}
	titleTokens := tokenizer.TokenizeMin(titleText, b.cfg.MinTokenLen)

	var contributorTokens []string
	for _, name := range rec.Attrs.Contributors {
		contributorTokens = append(contributorTokens, tokenizer.TokenizeMin(name, b.cfg.MinTokenLen)...)
	}

	freqs := make(map[Term]int)
	for _, tok := range titleTokens {
		freqs[Term{Text: tok, Field: FieldTitle}]++
	}
	for _, tok := range contributorTokens {
		freqs[Term{Text: tok, Field: FieldContributor}]++
	}
	for _, isbn := range []string{rec.Attrs.ISBN10, rec.Attrs.ISBN13} {
		if normalized := normalizeISBN(isbn); normalized != "" {
			freqs[Term{Text: normalized, Field: FieldISBN}]++
		}
	}

	doc.Terms = make([]Term, 0, len(freqs))
	for term, freq := range freqs {
		term.Frequency = freq
		doc.Terms = append(doc.Terms, term)
	}
	sort.Slice(doc.Terms, func(i, j int) bool {
		if doc.Terms[i].Text != doc.Terms[j].Text {
			return doc.Terms[i].Text < doc.Terms[j].Text
		}
		return doc.Terms[i].Field < doc.Terms[j].Field
	})

	prefixSet := make(map[string]struct{})
	for _, tok := range titleTokens {
		for _, p := range tokenizer.Prefixes(tok, b.cfg.MinTokenLen, b.cfg.PrefixMaxLen) {
			prefixSet[p] = struct{}{}
		}
	}
	for _, tok := range contributorTokens {
		for _, p := range tokenizer.Prefixes(tok, b.cfg.MinTokenLen, b.cfg.PrefixMaxLen) {
			prefixSet[p] = struct{}{}
		}
	}
	doc.Prefixes = make([]string, 0, len(prefixSet))
	for p := range prefixSet {
		doc.Prefixes = append(doc.Prefixes, p)
	}
	sort.Strings(doc.Prefixes)

	return doc, nil
}

// popularity folds rating volume, rating value, and edition count into a
// static facet in [0, 1]. Logarithmic in the counts so a handful of
// ratings does not dominate.
func popularity(attrs catalog.Attributes) float64 {
	counts := math.Log1p(float64(attrs.RatingCount)) / math.Log1p(ratingCountScale)
	if counts > 1 {
		counts = 1
	}
	quality := attrs.RatingAverage / 5.0
	editions := math.Log1p(float64(attrs.EditionCount)) / math.Log1p(1000)
	if editions > 1 {
		editions = 1
	}

	pop := 0.5*counts*quality + 0.3*counts + 0.2*editions
	if pop > 1 {
		pop = 1
	}
	return pop
}

func normalizeISBN(isbn string) string {
	var sb strings.Builder
	for _, r := range isbn {
		if r >= '0' && r <= '9' || r == 'x' || r == 'X' {
			sb.WriteRune(r | 0x20)
		}
	}
	s := sb.String()
	if len(s) != 10 && len(s) != 13 {
		return ""
	}
	return s
}

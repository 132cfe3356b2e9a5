// Package index implements the in-memory inverted search index: a sharded
// mapping from tokens (and token prefixes) to weighted postings, plus a
// document store keyed by ID. Documents are disposable projections of
// catalog records; the index can always be rebuilt from the store.
package index

import "github.com/bookbridge/searchd/internal/catalog"

// Field identifies which record field a term was extracted from. Title
// matches outrank contributor matches during scoring.
type Field uint8

const (
	FieldTitle Field = iota
	FieldContributor
	FieldISBN
)

func (f Field) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldContributor:
		return "contributor"
	case FieldISBN:
		return "isbn"
	default:
		return "unknown"
	}
}

// Term is one token occurrence count within a document field.
type Term struct {
	Text      string
	Field     Field
	Frequency int
}

// Document is the derived, disposable projection of one catalog record.
// Terms and Prefixes are sorted so that building the same record revision
// twice yields byte-identical documents.
type Document struct {
	ID           string
	Kind         catalog.Kind
	Revision     uint64
	Title        string
	Contributors []string
	Year         int
	Language     string
	Genres       []string
	Rating       float64
	RatingCount  int64
	Popularity   float64
	Terms        []Term
	Prefixes     []string
}

// Posting records how often a document matched a term, per field.
type Posting struct {
	DocID           string
	TitleFreq       int
	ContributorFreq int
	ISBNFreq        int
}

// PostingList is an ordered set of postings for one term.
type PostingList []Posting

// Mode selects the lookup strategy for a token.
type Mode int

const (
	ModeExact Mode = iota
	ModePrefix
	ModeFuzzy
)

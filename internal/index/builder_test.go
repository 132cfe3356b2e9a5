package index

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bookbridge/searchd/internal/catalog"
	"github.com/bookbridge/searchd/pkg/config"
	apperrors "github.com/bookbridge/searchd/pkg/errors"
)

func testBuilder() *Builder {
	return NewBuilder(config.IndexConfig{
		Shards:        4,
		PrefixMaxLen:  12,
		MinTokenLen:   2,
		FuzzyDistance: 2,
	})
}

func bookRecord(id string, rev uint64, title string, contributors ...string) *catalog.Record {
	return &catalog.Record{
		ID:       id,
		Kind:     catalog.KindBook,
		Revision: rev,
		Attrs: catalog.Attributes{
			Title:        title,
			Contributors: contributors,
		},
	}
}

func TestBuildExtractsFields(t *testing.T) {
	rec := bookRecord("b1", 1, "The Hobbit", "J. R. R. Tolkien")
	rec.Attrs.PublishYear = 1937
	rec.Attrs.Language = "English"
	rec.Attrs.Subjects = []string{"Fantasy", "Adventure"}
	rec.Attrs.ISBN13 = "978-0-261-10295-2"

	doc, err := testBuilder().Build(rec)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != "b1" || doc.Revision != 1 || doc.Year != 1937 {
		t.Errorf("unexpected document header: %+v", doc)
	}
	if doc.Language != "english" {
		t.Errorf("expected folded language, got %q", doc.Language)
	}
	if !reflect.DeepEqual(doc.Genres, []string{"adventure", "fantasy"}) {
		t.Errorf("expected sorted folded genres, got %v", doc.Genres)
	}

	wantTerms := map[string]Field{
		"hobbit":        FieldTitle,
		"tolkien":       FieldContributor,
		"9780261102952": FieldISBN,
	}
	for text, field := range wantTerms {
		found := false
		for _, term := range doc.Terms {
			if term.Text == text && term.Field == field {
				found = true
			}
		}
		if !found {
			t.Errorf("expected term %q in field %s, terms: %v", text, field, doc.Terms)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	rec := bookRecord("b1", 7, "One Hundred Years of Solitude", "Gabriel García Márquez")
	rec.Attrs.Subjects = []string{"Magic realism", "Classics"}

	b := testBuilder()
	first, err := b.Build(rec)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := b.Build(rec)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("build %d differs from first build", i)
		}
	}
}

func TestBuildPrefixes(t *testing.T) {
	doc, err := testBuilder().Build(bookRecord("b1", 1, "Dune", "Frank Herbert"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"du", "dun", "dune", "he", "herbert", "fr", "frank"} {
		found := false
		for _, p := range doc.Prefixes {
			if p == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected prefix %q, got %v", want, doc.Prefixes)
		}
	}
}

func TestBuildRejectsInvalidRecords(t *testing.T) {
	b := testBuilder()
	if _, err := b.Build(nil); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("nil record: got %v", err)
	}
	if _, err := b.Build(&catalog.Record{Kind: catalog.KindBook, Revision: 1}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("missing ID: got %v", err)
	}
	if _, err := b.Build(&catalog.Record{ID: "x", Kind: "magazine", Revision: 1}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("bad kind: got %v", err)
	}
}

func TestPopularityBounds(t *testing.T) {
	low := popularity(catalog.Attributes{})
	high := popularity(catalog.Attributes{
		RatingAverage: 5.0,
		RatingCount:   50_000_000,
		EditionCount:  5000,
	})
	if low != 0 {
		t.Errorf("empty attributes should score 0, got %f", low)
	}
	if high <= low || high > 1 {
		t.Errorf("saturated attributes should score in (0, 1], got %f", high)
	}

	few := popularity(catalog.Attributes{RatingAverage: 5.0, RatingCount: 3})
	many := popularity(catalog.Attributes{RatingAverage: 4.0, RatingCount: 2_000_000})
	if few >= many {
		t.Errorf("rating volume should outweigh a tiny perfect score: few=%f many=%f", few, many)
	}
}

func TestNormalizeISBN(t *testing.T) {
	cases := map[string]string{
		"978-0-261-10295-2": "9780261102952",
		"0-395-19395-8":     "0395193958",
		"039519395X":        "039519395x",
		"not an isbn":       "",
		"12345":             "",
	}
	for input, want := range cases {
		if got := normalizeISBN(input); got != want {
			t.Errorf("normalizeISBN(%q) = %q, want %q", input, got, want)
		}
	}
}

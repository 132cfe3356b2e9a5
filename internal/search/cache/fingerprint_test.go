package cache

import (
	"strings"
	"testing"

	"github.com/bookbridge/searchd/internal/search"
)

func TestFingerprintCanonical(t *testing.T) {
	a := &search.Request{Terms: []string{"dune", "messiah"}, Page: 1, PageSize: 20, Sort: search.SortRelevance}
	b := &search.Request{Terms: []string{"messiah", "dune"}, Page: 1, PageSize: 20, Sort: search.SortRelevance}
	c := &search.Request{Terms: []string{"dune", "messiah", "dune"}, Page: 1, PageSize: 20, Sort: search.SortRelevance}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("term order changed the fingerprint")
	}
	if Fingerprint(a) != Fingerprint(c) {
		t.Error("duplicate term changed the fingerprint")
	}
}

func TestFingerprintDistinguishes(t *testing.T) {
	base := &search.Request{Terms: []string{"dune"}, Page: 1, PageSize: 20, Sort: search.SortRelevance}
	variants := []*search.Request{
		{Terms: []string{"dune"}, Page: 2, PageSize: 20, Sort: search.SortRelevance},
		{Terms: []string{"dune"}, Page: 1, PageSize: 10, Sort: search.SortRelevance},
		{Terms: []string{"dune"}, Page: 1, PageSize: 20, Sort: search.SortYear},
		{Terms: []string{"dune"}, Page: 1, PageSize: 20, Sort: search.SortRelevance,
			Filters: search.Filters{Genre: "fantasy"}},
		{Terms: []string{"dune"}, Page: 1, PageSize: 20, Sort: search.SortRelevance,
			Filters: search.Filters{YearMin: 1960}},
		{Terms: []string{"arrakis"}, Page: 1, PageSize: 20, Sort: search.SortRelevance},
	}
	baseFP := Fingerprint(base)
	for i, v := range variants {
		if Fingerprint(v) == baseFP {
			t.Errorf("variant %d collided with base", i)
		}
	}
}

func TestFingerprintPrefix(t *testing.T) {
	fp := Fingerprint(&search.Request{Terms: []string{"dune"}, Page: 1, PageSize: 20})
	if !strings.HasPrefix(fp, keyPrefix) {
		t.Errorf("fingerprint %q missing key prefix", fp)
	}
}

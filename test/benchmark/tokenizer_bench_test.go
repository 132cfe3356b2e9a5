package benchmark

import (
	"testing"

	"github.com/bookbridge/searchd/internal/index/tokenizer"
)

const tokenizerSample = "Cien Años de Soledad — Gabriel García Márquez, " +
	"a landmark of magic realism first published in 1967 by Editorial Sudamericana"

// BenchmarkTokenize measures normalization throughput including the
// diacritic fold.
func BenchmarkTokenize(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tokens := tokenizer.Tokenize(tokenizerSample)
		_ = tokens
	}
}

// BenchmarkFoldASCII measures the fast path where folding changes nothing.
func BenchmarkFoldASCII(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		folded := tokenizer.Fold("The Complete Works of William Shakespeare")
		_ = folded
	}
}

// BenchmarkPrefixes measures autocomplete prefix expansion.
func BenchmarkPrefixes(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		prefixes := tokenizer.Prefixes("incomprehensible", 2, 12)
		_ = prefixes
	}
}

package index

import "testing"

func TestBoundedLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		max  int
		want int
	}{
		{"hobbit", "hobbit", 2, 0},
		{"hobit", "hobbit", 2, 1},
		{"hobbbit", "hobbit", 2, 1},
		{"hpbbit", "hobbit", 2, 1},
		{"hobbit", "hobby", 2, 2},
		{"kitten", "sitting", 3, 3},
		{"", "abc", 3, 3},
		{"abc", "", 3, 3},
	}
	for _, tc := range cases {
		if got := BoundedLevenshtein(tc.a, tc.b, tc.max); got != tc.want {
			t.Errorf("BoundedLevenshtein(%q, %q, %d) = %d, want %d", tc.a, tc.b, tc.max, got, tc.want)
		}
	}
}

func TestBoundedLevenshteinEarlyExit(t *testing.T) {
	// Distances past the bound only need to report "too far".
	if got := BoundedLevenshtein("completely", "different", 2); got <= 2 {
		t.Errorf("expected distance above bound, got %d", got)
	}
	if got := BoundedLevenshtein("short", "muchlongerstring", 2); got <= 2 {
		t.Errorf("length difference alone exceeds bound, got %d", got)
	}
}

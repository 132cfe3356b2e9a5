package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenizeNormalizes(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"lowercases", "The HOBBIT", []string{"hobbit"}},
		{"folds diacritics", "Gabriel García Márquez", []string{"gabriel", "garcia", "marquez"}},
		{"splits punctuation", "don't-stop, now!", []string{"don", "stop", "now"}},
		{"drops stop words", "the lord of the rings", []string{"lord", "rings"}},
		{"drops short tokens", "a b cd", []string{"cd"}},
		{"keeps digits", "1984 catch 22", []string{"1984", "catch", "22"}},
		{"keeps duplicates", "war war peace", []string{"war", "war", "peace"}},
		{"empty input", "", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Tokenize(tc.input)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	input := "Cien años de soledad — Gabriel García Márquez"
	first := Tokenize(input)
	for i := 0; i < 10; i++ {
		if got := Tokenize(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced %v, first run produced %v", i, got, first)
		}
	}
}

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Brontë":   "bronte",
		"ZOLA":     "zola",
		"Kafka":    "kafka",
		"São João": "sao joao",
	}
	for input, want := range cases {
		if got := Fold(input); got != want {
			t.Errorf("Fold(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPrefixes(t *testing.T) {
	got := Prefixes("hobbit", 2, 12)
	want := []string{"ho", "hob", "hobb", "hobbi", "hobbit"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Prefixes = %v, want %v", got, want)
	}

	if got := Prefixes("x", 2, 12); got != nil {
		t.Errorf("expected nil for sub-minimum token, got %v", got)
	}

	capped := Prefixes("incomprehensibilities", 2, 5)
	if len(capped) != 4 || capped[len(capped)-1] != "incom" {
		t.Errorf("expected prefixes capped at 5 runes, got %v", capped)
	}
}

// Package catalog defines the authoritative catalog record model and the
// durable store contract. Records are revisioned: every mutation bumps a
// store-wide monotonic revision counter, which is the ordering the
// synchronizer consumes.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/bookbridge/searchd/pkg/errors"
)

// Kind discriminates the three catalog entity types.
type Kind string

const (
	KindBook    Kind = "book"
	KindAuthor  Kind = "author"
	KindEdition Kind = "edition"
)

// ValidKind reports whether k is one of the three entity kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindBook, KindAuthor, KindEdition:
		return true
	}
	return false
}

// Attributes is the mutable attribute set of a record. Which fields are
// populated depends on the Kind; the zero value of an unused field is
// simply absent.
type Attributes struct {
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Description   string   `json:"description,omitempty"`
	Contributors  []string `json:"contributors,omitempty"`
	PublishYear   int      `json:"publish_year,omitempty"`
	Language      string   `json:"language,omitempty"`
	ISBN10        string   `json:"isbn_10,omitempty"`
	ISBN13        string   `json:"isbn_13,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	Pages         int      `json:"pages,omitempty"`
	Subjects      []string `json:"subjects,omitempty"`
	RatingAverage float64  `json:"rating_average,omitempty"`
	RatingCount   int64    `json:"rating_count,omitempty"`
	EditionCount  int      `json:"edition_count,omitempty"`
	WorkKey       string   `json:"work_key,omitempty"`
}

// Record is one authoritative catalog entity. ID and Kind are immutable,
// Attrs mutate, and Revision is assigned by the store on every Put. A
// deleted record survives as a tombstone so ChangesSince can carry the
// deletion to consumers.
type Record struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Revision  uint64     `json:"revision"`
	Deleted   bool       `json:"deleted,omitempty"`
	Attrs     Attributes `json:"attrs"`
	UpdatedAt time.Time  `json:"updated_at"`
}

const (
	maxTitleLength = 1024
	minPublishYear = 1000
	maxRating      = 5.0
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return errors.ErrValidation
}

// Validate checks the record against the write-boundary constraints and
// returns a ValidationError listing every violated field.
func (r *Record) Validate() error {
	errs := make(map[string]string)

	if strings.TrimSpace(r.ID) == "" {
		errs["id"] = "id is required"
	}
	if !ValidKind(r.Kind) {
		errs["kind"] = fmt.Sprintf("kind must be one of book, author, edition; got %q", r.Kind)
	}

	title := strings.TrimSpace(r.Attrs.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if y := r.Attrs.PublishYear; y != 0 && (y < minPublishYear || y > time.Now().Year()+1) {
		errs["publish_year"] = fmt.Sprintf("publish year %d out of range", y)
	}
	if avg := r.Attrs.RatingAverage; avg < 0 || avg > maxRating {
		errs["rating_average"] = fmt.Sprintf("rating average must be within [0, %.0f]", maxRating)
	}
	if r.Attrs.RatingCount < 0 {
		errs["rating_count"] = "rating count must not be negative"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

package search

import (
	"math"
	"sort"
	"time"
)

// recencyBaseYear anchors the recency normalization; anything published at
// or before it scores zero recency.
const recencyBaseYear = 1950

// Hit is one ranked search result with its snippet fields.
type Hit struct {
	DocumentID   string   `json:"document_id"`
	Score        float64  `json:"score"`
	Title        string   `json:"title"`
	Contributors []string `json:"contributors,omitempty"`
	Year         int      `json:"year,omitempty"`
	Rating       float64  `json:"rating,omitempty"`
}

// rank produces the final deterministic ordering: for relevance, a
// weighted sum of normalized text relevance, popularity, and recency; for
// year and rating sorts, the facet itself. Ties always break by document
// ID ascending so pagination is stable.
func (s *Searcher) rank(candidates map[string]*candidate, sortMode Sort) []Hit {
	maxText := 0.0
	for _, cand := range candidates {
		if cand.textScore > maxText {
			maxText = cand.textScore
		}
	}

	currentYear := time.Now().Year()
	hits := make([]Hit, 0, len(candidates))
	for _, cand := range candidates {
		doc := cand.doc
		var score float64
		switch sortMode {
		case SortYear:
			score = float64(doc.Year)
		case SortRating:
			score = doc.Rating
		case sortPopularity:
			score = doc.Popularity
		default:
			text := 0.0
			if maxText > 0 {
				text = cand.textScore / maxText
			}
			score = s.cfg.TextWeight*text +
				s.cfg.PopularityWeight*doc.Popularity +
				s.cfg.RecencyWeight*recency(doc.Year, currentYear)
		}
		hits = append(hits, Hit{
			DocumentID:   doc.ID,
			Score:        math.Round(score*10000) / 10000,
			Title:        doc.Title,
			Contributors: doc.Contributors,
			Year:         doc.Year,
			Rating:       doc.Rating,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	return hits
}

// recency maps a publication year to [0, 1], clamped.
func recency(year, currentYear int) float64 {
	if year <= recencyBaseYear {
		return 0
	}
	span := currentYear - recencyBaseYear
	if span <= 0 {
		return 0
	}
	r := float64(year-recencyBaseYear) / float64(span)
	if r > 1 {
		r = 1
	}
	return r
}

// paginate slices hits to the requested page. An offset beyond the result
// count yields an empty page, not an error.
func paginate(hits []Hit, page, pageSize int) []Hit {
	offset := (page - 1) * pageSize
	if offset >= len(hits) {
		return []Hit{}
	}
	end := offset + pageSize
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}

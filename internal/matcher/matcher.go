// Package matcher scans an enrolled gallery for the identity closest to a
// query descriptor.
package matcher

import (
	"math"

	"rollcall/internal/model"
)

const (
	MsgMatched       = "matched"
	MsgNotRecognized = "not recognized"
)

// Scorer returns a similarity in [0,1]; higher is closer.
type Scorer interface {
	Score(a, b []float32) float64
}

// Cosine is cosine similarity clamped at 0. Mismatched lengths and zero
// vectors score 0.
type Cosine struct{}

func (Cosine) Score(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		return 1
	}
	if sim < 0 {
		return 0
	}
	return sim
}

// Result is the outcome of one gallery scan.
type Result struct {
	Matched bool    `json:"matched"`
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name,omitempty"`
	Score   float64 `json:"score"`
	Message string  `json:"message"`
}

func noMatch() Result {
	return Result{Matched: false, Score: 0, Message: MsgNotRecognized}
}

type Matcher struct {
	scorer    Scorer
	threshold float64
}

func New(scorer Scorer, threshold float64) *Matcher {
	if scorer == nil {
		scorer = Cosine{}
	}
	return &Matcher{scorer: scorer, threshold: threshold}
}

func (m *Matcher) Threshold() float64 { return m.threshold }

// Match returns the highest-scoring entry at or above the threshold. Ties keep
// the entry seen first. Entries whose descriptor length differs from the
// query are skipped.
func (m *Matcher) Match(query []float32, gallery []model.GalleryEntry) Result {
	if len(query) == 0 {
		return noMatch()
	}
	best := noMatch()
	for _, e := range gallery {
		if len(e.Descriptor) != len(query) {
			continue
		}
		s := m.scorer.Score(query, e.Descriptor)
		if s < m.threshold {
			continue
		}
		if !best.Matched || s > best.Score {
			best = Result{Matched: true, ID: e.ID, Name: e.Name, Score: s, Message: MsgMatched}
		}
	}
	return best
}

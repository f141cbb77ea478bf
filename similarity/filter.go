package similarity

import (
	"math"

	"github.com/poiesic/neardup/core"
)

// scoreScale rounds stored scores to 6 decimal places.
const scoreScale = 1e6

// RoundScore rounds a similarity score to 6 decimal places.
func RoundScore(score float64) float64 {
	return math.Round(score*scoreScale) / scoreScale
}

// Filter keeps pairs whose similarity reaches Threshold.
type Filter struct {
	Threshold float64
}

// Apply decides whether the pair of ids scoring score is kept. The raw score
// is compared against the threshold; the returned pair is canonical and its
// score rounded and clamped to at most 1.
func (f Filter) Apply(idI, idJ core.ID, score float64) (core.Pair, bool) {
	if math.IsNaN(score) || score < f.Threshold {
		return core.Pair{}, false
	}
	rounded := min(RoundScore(score), 1.0)
	return core.NewPair(idI, idJ, rounded), true
}

package matching

import (
	"fmt"
	"math"
	"sort"

	"github.com/shinyyama/tripmatch-backend/internal/model"
)

// Weights are the relative contributions of each sub-score to the final match score.
type Weights struct {
	DateFit        float64
	CapacityMargin float64
	Reliability    float64
}

var DefaultWeights = Weights{DateFit: 0.4, CapacityMargin: 0.3, Reliability: 0.3}

// NeutralReliability is the reliability sub-score of a traveler with no rating history.
const NeutralReliability = 50.0

// Breakdown holds the sub-scores, each in [0, 100].
type Breakdown struct {
	DateFit        float64
	CapacityMargin float64
	Reliability    float64
}

type Ranked struct {
	Trip      model.Trip
	Fit       CapacityFit
	Score     int
	Breakdown Breakdown
	Rationale []string
}

type Scorer struct {
	weights Weights
	limit   int
}

// NewScorer rescales w so the weights sum to 1. Invalid weights fall back to DefaultWeights.
// limit <= 0 means no cap on results.
func NewScorer(w Weights, limit int) *Scorer {
	sum := w.DateFit + w.CapacityMargin + w.Reliability
	if w.DateFit < 0 || w.CapacityMargin < 0 || w.Reliability < 0 || sum <= 0 {
		w, sum = DefaultWeights, 1
	}
	w = Weights{DateFit: w.DateFit / sum, CapacityMargin: w.CapacityMargin / sum, Reliability: w.Reliability / sum}
	return &Scorer{weights: w, limit: limit}
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

// Rank scores every candidate and orders them by score, then capacity margin, then
// earlier trip creation, then trip id. The order is total, so equal inputs rank identically.
func (s *Scorer) Rank(q MatchQuery, cands []Candidate, ratings map[string]model.TravelerRating) []Ranked {
	out := make([]Ranked, 0, len(cands))
	for _, c := range cands {
		var rating *model.TravelerRating
		if r, ok := ratings[c.Trip.OwnerUID]; ok {
			rating = &r
		}
		out = append(out, s.score(q, c, rating))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Breakdown.CapacityMargin != b.Breakdown.CapacityMargin {
			return a.Breakdown.CapacityMargin > b.Breakdown.CapacityMargin
		}
		if !a.Trip.CreatedAt.Equal(b.Trip.CreatedAt) {
			return a.Trip.CreatedAt.Before(b.Trip.CreatedAt)
		}
		return a.Trip.ID < b.Trip.ID
	})
	if s.limit > 0 && len(out) > s.limit {
		out = out[:s.limit]
	}
	return out
}

func (s *Scorer) score(q MatchQuery, c Candidate, rating *model.TravelerRating) Ranked {
	b := Breakdown{
		DateFit:        DateFitScore(q.WindowStart, q.WindowEnd, c.Trip.ArrivalDate),
		CapacityMargin: CapacityMarginScore(c.Trip.Available(q.RequiredBucket), c.Trip.Total(q.RequiredBucket), q.TotalWeightG),
		Reliability:    ReliabilityScore(rating),
	}
	total := s.weights.DateFit*b.DateFit + s.weights.CapacityMargin*b.CapacityMargin + s.weights.Reliability*b.Reliability
	return Ranked{
		Trip:      c.Trip,
		Fit:       c.Fit,
		Score:     clampScore(int(math.Round(total))),
		Breakdown: b,
		Rationale: s.rationale(q, c.Trip, b, rating),
	}
}

// DateFitScore is 100 while the arrival falls in the first quarter of the window and
// decays linearly to 0 at the window end. A single-day window scores 100 only on that day.
func DateFitScore(windowStart, windowEnd, arrival string) float64 {
	w := daysBetween(windowStart, windowEnd)
	d := daysBetween(windowStart, arrival)
	if d < 0 || d > w {
		return 0
	}
	if w == 0 {
		return 100
	}
	plateau := float64(w) / 4
	if float64(d) <= plateau {
		return 100
	}
	return 100 * (float64(w) - float64(d)) / (float64(w) - plateau)
}

// CapacityMarginScore is the spare capacity after the shipment as a share of the bucket total.
func CapacityMarginScore(available, total, need int64) float64 {
	if total <= 0 {
		return 0
	}
	r := float64(available-need) / float64(total)
	return 100 * math.Max(0, math.Min(1, r))
}

func ReliabilityScore(r *model.TravelerRating) float64 {
	if r == nil || r.Count == 0 {
		return NeutralReliability
	}
	stars := math.Max(0, math.Min(5, r.Average))
	return stars * 20
}

type factor struct {
	key          string
	contribution float64
}

// rationale explains the two factors that contributed most to the score.
func (s *Scorer) rationale(q MatchQuery, t model.Trip, b Breakdown, rating *model.TravelerRating) []string {
	factors := []factor{
		{"date", s.weights.DateFit * b.DateFit},
		{"capacity", s.weights.CapacityMargin * b.CapacityMargin},
		{"reliability", s.weights.Reliability * b.Reliability},
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].contribution > factors[j].contribution })

	out := make([]string, 0, 2)
	for _, f := range factors[:2] {
		switch f.key {
		case "date":
			left := daysBetween(t.ArrivalDate, q.WindowEnd)
			switch left {
			case 0:
				out = append(out, "Arrives on the last day of your delivery window")
			case 1:
				out = append(out, "Arrives 1 day before your delivery window closes")
			default:
				out = append(out, fmt.Sprintf("Arrives %d days before your delivery window closes", left))
			}
		case "capacity":
			out = append(out, fmt.Sprintf("%d%% of %s capacity remains free after your items", int(math.Round(b.CapacityMargin)), q.RequiredBucket.Label()))
		case "reliability":
			if rating == nil || rating.Count == 0 {
				out = append(out, "New traveler with no rating history")
			} else {
				out = append(out, fmt.Sprintf("Traveler rated %.1f of 5 across %d trips", rating.Average, rating.Count))
			}
		}
	}
	return out
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

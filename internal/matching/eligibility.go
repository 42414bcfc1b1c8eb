package matching

import "github.com/shinyyama/tripmatch-backend/internal/model"

// Rule names the first hard constraint a trip failed.
type Rule string

const (
	RuleTripNotActive              Rule = "trip_not_active"
	RuleInsufficientCapacity       Rule = "insufficient_capacity"
	RuleFragileUnsupported         Rule = "fragile_not_supported"
	RuleSpecialDeliveryUnsupported Rule = "special_delivery_not_supported"
)

// CapacityFit is the capacity snapshot taken when a trip was evaluated.
type CapacityFit struct {
	FitsCarryOn       bool
	AvailableCarryOnG int64
	AvailableCheckedG int64
}

type Verdict struct {
	Eligible bool
	Failed   Rule
	Fit      CapacityFit
}

type Candidate struct {
	Trip model.Trip
	Fit  CapacityFit
}

type Rejection struct {
	TripID string `json:"tripId"`
	Rule   Rule   `json:"reason"`
}

// Evaluate applies the hard rules in order and stops at the first failure.
func Evaluate(q MatchQuery, t *model.Trip) Verdict {
	fit := CapacityFit{
		FitsCarryOn:       t.AvailableCarryOnG >= q.TotalWeightG,
		AvailableCarryOnG: t.AvailableCarryOnG,
		AvailableCheckedG: t.AvailableCheckedG,
	}
	if t.Status != model.TripStatusActive {
		return Verdict{Failed: RuleTripNotActive, Fit: fit}
	}
	if t.Available(q.RequiredBucket) < q.TotalWeightG {
		return Verdict{Failed: RuleInsufficientCapacity, Fit: fit}
	}
	if q.NeedsFragile && !t.CanCarryFragile {
		return Verdict{Failed: RuleFragileUnsupported, Fit: fit}
	}
	if q.NeedsSpecialDelivery {
		if !t.CanHandleSpecialDelivery {
			return Verdict{Failed: RuleSpecialDeliveryUnsupported, Fit: fit}
		}
		for _, c := range q.SpecialCategories {
			if !t.SupportsCategory(c) {
				return Verdict{Failed: RuleSpecialDeliveryUnsupported, Fit: fit}
			}
		}
	}
	return Verdict{Eligible: true, Fit: fit}
}

// Filter splits candidates into eligible ones and rejections, preserving input order.
func Filter(q MatchQuery, trips []model.Trip) ([]Candidate, []Rejection) {
	var ok []Candidate
	var rejected []Rejection
	for i := range trips {
		v := Evaluate(q, &trips[i])
		if !v.Eligible {
			rejected = append(rejected, Rejection{TripID: trips[i].ID, Rule: v.Failed})
			continue
		}
		ok = append(ok, Candidate{Trip: trips[i], Fit: v.Fit})
	}
	return ok, rejected
}

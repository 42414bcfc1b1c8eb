package matching

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"github.com/shinyyama/tripmatch-backend/internal/model"
)

// MatchQuery is the normalized, trusted form of a shopper request used by discovery,
// eligibility and scoring.
type MatchQuery struct {
	FromCountry          string
	ToCountry            string
	WindowStart          string
	WindowEnd            string
	RequiredBucket       model.Bucket
	TotalWeightG         int64
	NeedsFragile         bool
	NeedsSpecialDelivery bool
	SpecialCategories    []string
}

func (q MatchQuery) TotalWeightKg() float64 {
	return model.GramsToKg(q.TotalWeightG)
}

// WindowDays is the width of the inclusive delivery window in days; 0 for a single day.
func (q MatchQuery) WindowDays() int {
	return daysBetween(q.WindowStart, q.WindowEnd)
}

// QueryFromRequest rebuilds the query of a stored request. Stored requests were normalized
// on create; the weight is still re-checked so a corrupt row can never reach the ledger.
func QueryFromRequest(r *model.ShopperRequest) (MatchQuery, error) {
	q := MatchQuery{
		FromCountry:    r.FromCountry,
		ToCountry:      r.DestinationCountry,
		WindowStart:    r.WindowStart,
		WindowEnd:      r.WindowEnd,
		RequiredBucket: r.RequiredBucket(),
	}
	var total int64
	cats := map[string]struct{}{}
	for i, it := range r.Items {
		if it.WeightG <= 0 || it.WeightG > model.KgToGrams(MaxItemWeightKg) || it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return MatchQuery{}, domainerr.Invalid(fmt.Sprintf("bagItems[%d].quantity", i), "stored item weight or quantity out of range")
		}
		total += it.WeightG * int64(it.Quantity)
		if total > maxTotalWeightG {
			return MatchQuery{}, domainerr.Invalid(fmt.Sprintf("bagItems[%d].quantity", i), "shipment exceeds %g kg", model.MaxBucketKg)
		}
		if it.IsFragile {
			q.NeedsFragile = true
		}
		if it.RequiresSpecialDelivery {
			q.NeedsSpecialDelivery = true
			if it.SpecialDeliveryCategory != nil && *it.SpecialDeliveryCategory != "" {
				cats[*it.SpecialDeliveryCategory] = struct{}{}
			}
		}
	}
	if total == 0 {
		total = r.TotalWeightG
	}
	if total <= 0 || total > maxTotalWeightG {
		return MatchQuery{}, domainerr.Invalid("bagItems", "shipment weight out of range")
	}
	q.TotalWeightG = total
	q.SpecialCategories = sortedKeys(cats)
	return q, nil
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func canonicalCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// daysBetween returns whole calendar days from a to b. Both are YYYY-MM-DD dates already validated.
func daysBetween(a, b string) int {
	ta, err := time.Parse(model.DateLayout, a)
	if err != nil {
		return 0
	}
	tb, err := time.Parse(model.DateLayout, b)
	if err != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}

// CanonicalCategories lower-cases, trims, de-duplicates and sorts special-delivery categories.
func CanonicalCategories(in []string) []string {
	set := map[string]struct{}{}
	for _, c := range in {
		if c = canonicalCategory(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

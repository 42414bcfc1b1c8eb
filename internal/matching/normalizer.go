package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"github.com/shinyyama/tripmatch-backend/internal/model"
)

const (
	MaxItemWeightKg = 50.0
	MaxItemQuantity = 1000
)

// maxTotalWeightG is the heaviest shipment any single trip bucket could hold.
var maxTotalWeightG = model.KgToGrams(model.MaxBucketKg)

type BagItemPayload struct {
	ProductName             string   `json:"productName"`
	Link                    *string  `json:"link,omitempty"`
	Price                   float64  `json:"price"`
	Currency                string   `json:"currency"`
	WeightKg                float64  `json:"weightKg"`
	Quantity                *int     `json:"quantity,omitempty"`
	IsFragile               bool     `json:"isFragile"`
	RequiresSpecialDelivery bool     `json:"requiresSpecialDelivery"`
	SpecialDeliveryCategory *string  `json:"specialDeliveryCategory,omitempty"`
	Photos                  []string `json:"photos,omitempty"`
}

// RequestPayload is the raw, untrusted shopper request as it arrives from a client.
type RequestPayload struct {
	FromCountry         string           `json:"fromCountry"`
	DestinationCountry  string           `json:"destinationCountry"`
	DeliveryWindowStart string           `json:"deliveryWindowStart"`
	DeliveryWindowEnd   string           `json:"deliveryWindowEnd"`
	Pickup              bool             `json:"pickup"`
	CarryOn             bool             `json:"carryOn"`
	BagItems            []BagItemPayload `json:"bagItems"`
}

// Supported holds the country and currency sets a payload is validated against.
type Supported struct {
	Origins      map[string]struct{}
	Destinations map[string]struct{}
	Currencies   map[string]struct{}
}

func NewSupported(origins, destinations, currencies []string) Supported {
	return Supported{
		Origins:      codeSet(origins),
		Destinations: codeSet(destinations),
		Currencies:   codeSet(currencies),
	}
}

func DefaultSupported() Supported {
	return NewSupported(
		[]string{"US", "GB", "CA", "DE", "FR", "AE", "CN", "TR"},
		[]string{"NG", "GH", "KE", "ZA", "EG", "MA", "SN"},
		[]string{"USD", "GBP", "EUR", "CAD", "NGN", "GHS", "KES", "ZAR", "AED", "CNY"},
	)
}

func codeSet(codes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = canonicalCode(c); c != "" {
			out[c] = struct{}{}
		}
	}
	return out
}

func canonicalCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Normalized carries the query for matching and the canonical request ready to persist.
// Request has no ID, owner or status; the caller fills those in.
type Normalized struct {
	Query   MatchQuery
	Request model.ShopperRequest
}

type Normalizer struct {
	supported Supported
}

func NewNormalizer(s Supported) *Normalizer {
	return &Normalizer{supported: s}
}

// Normalize validates the whole payload and either returns a complete result or the
// first ValidationError; nothing is partially accepted.
func (n *Normalizer) Normalize(p RequestPayload) (*Normalized, error) {
	from := canonicalCode(p.FromCountry)
	if _, ok := n.supported.Origins[from]; !ok {
		return nil, domainerr.Invalid("fromCountry", "unsupported departure country %q", p.FromCountry)
	}
	to := canonicalCode(p.DestinationCountry)
	if _, ok := n.supported.Destinations[to]; !ok {
		return nil, domainerr.Invalid("destinationCountry", "unsupported destination country %q", p.DestinationCountry)
	}
	if from == to {
		return nil, domainerr.Invalid("destinationCountry", "destination must differ from departure country")
	}

	start, err := parseDate(p.DeliveryWindowStart)
	if err != nil {
		return nil, domainerr.Invalid("deliveryWindowStart", "expected YYYY-MM-DD")
	}
	end, err := parseDate(p.DeliveryWindowEnd)
	if err != nil {
		return nil, domainerr.Invalid("deliveryWindowEnd", "expected YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, domainerr.Invalid("deliveryWindowEnd", "window end is before window start")
	}

	if len(p.BagItems) == 0 {
		return nil, domainerr.Invalid("bagItems", "at least one bag item is required")
	}

	q := MatchQuery{
		FromCountry: from,
		ToCountry:   to,
		WindowStart: start.Format(model.DateLayout),
		WindowEnd:   end.Format(model.DateLayout),
	}
	req := model.ShopperRequest{
		FromCountry:        from,
		DestinationCountry: to,
		WindowStart:        q.WindowStart,
		WindowEnd:          q.WindowEnd,
		Pickup:             p.Pickup,
		CarryOn:            p.CarryOn,
	}
	cats := map[string]struct{}{}
	for i, it := range p.BagItems {
		item, err := n.normalizeItem(i, it)
		if err != nil {
			return nil, err
		}
		// both factors are bounded by normalizeItem, so the product cannot overflow
		q.TotalWeightG += item.WeightG * int64(item.Quantity)
		if q.TotalWeightG > maxTotalWeightG {
			return nil, domainerr.Invalid(fmt.Sprintf("bagItems[%d].quantity", i), "shipment exceeds %g kg, more than any trip can carry", model.MaxBucketKg)
		}
		if item.IsFragile {
			q.NeedsFragile = true
		}
		if item.RequiresSpecialDelivery {
			q.NeedsSpecialDelivery = true
			if item.SpecialDeliveryCategory != nil {
				cats[*item.SpecialDeliveryCategory] = struct{}{}
			}
		}
		req.Items = append(req.Items, item)
	}
	q.RequiredBucket = req.RequiredBucket()
	q.SpecialCategories = sortedKeys(cats)
	req.TotalWeightG = q.TotalWeightG

	return &Normalized{Query: q, Request: req}, nil
}

func (n *Normalizer) normalizeItem(i int, it BagItemPayload) (model.BagItem, error) {
	field := func(name string) string { return fmt.Sprintf("bagItems[%d].%s", i, name) }

	name := strings.TrimSpace(it.ProductName)
	if name == "" {
		return model.BagItem{}, domainerr.Invalid(field("productName"), "product name is required")
	}
	if !(it.WeightKg > 0 && it.WeightKg <= MaxItemWeightKg) {
		return model.BagItem{}, domainerr.Invalid(field("weightKg"), "weight must be greater than 0 and at most %g kg", MaxItemWeightKg)
	}
	// sub-gram weights would round to nothing
	grams := model.KgToGrams(it.WeightKg)
	if grams <= 0 {
		return model.BagItem{}, domainerr.Invalid(field("weightKg"), "weight must be at least 1 g")
	}
	qty := 1
	if it.Quantity != nil {
		qty = *it.Quantity
	}
	if qty < 1 || qty > MaxItemQuantity {
		return model.BagItem{}, domainerr.Invalid(field("quantity"), "quantity must be between 1 and %d", MaxItemQuantity)
	}
	if it.Price < 0 {
		return model.BagItem{}, domainerr.Invalid(field("price"), "price cannot be negative")
	}
	cur := canonicalCode(it.Currency)
	if _, ok := n.supported.Currencies[cur]; !ok {
		return model.BagItem{}, domainerr.Invalid(field("currency"), "unsupported currency %q", it.Currency)
	}

	item := model.BagItem{
		Position:                i,
		ProductName:             name,
		Price:                   it.Price,
		Currency:                cur,
		WeightG:                 grams,
		Quantity:                qty,
		IsFragile:               it.IsFragile,
		RequiresSpecialDelivery: it.RequiresSpecialDelivery,
	}
	if it.Link != nil {
		if l := strings.TrimSpace(*it.Link); l != "" {
			item.Link = &l
		}
	}
	// a category implies special handling
	if it.SpecialDeliveryCategory != nil {
		if c := canonicalCategory(*it.SpecialDeliveryCategory); c != "" {
			item.SpecialDeliveryCategory = &c
			item.RequiresSpecialDelivery = true
		}
	}
	for _, ph := range it.Photos {
		if ph = strings.TrimSpace(ph); ph != "" {
			item.Photos = append(item.Photos, ph)
		}
	}
	return item, nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(model.DateLayout, strings.TrimSpace(s))
}

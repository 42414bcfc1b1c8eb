package handler

import (
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/service"
)

// API weights are kilograms; the engine keeps grams.

type TripResponse struct {
	ID                       string   `json:"id"`
	OwnerUID                 string   `json:"ownerUid"`
	OriginCountry            string   `json:"originCountry"`
	DestinationCountry       string   `json:"destinationCountry"`
	DepartureAt              string   `json:"departureAt"`
	DepartureTZ              string   `json:"departureTimezone"`
	ArrivalAt                string   `json:"arrivalAt"`
	ArrivalTZ                string   `json:"arrivalTimezone"`
	ArrivalDate              string   `json:"arrivalDate"`
	TotalCarryOnKg           float64  `json:"totalCarryOnKg"`
	AvailableCarryOnKg       float64  `json:"availableCarryOnKg"`
	TotalCheckedKg           float64  `json:"totalCheckedKg"`
	AvailableCheckedKg       float64  `json:"availableCheckedKg"`
	CanCarryFragile          bool     `json:"canCarryFragile"`
	CanHandleSpecialDelivery bool     `json:"canHandleSpecialDelivery"`
	SpecialCategories        []string `json:"specialCategories"`
	TicketPhotoRef           *string  `json:"ticketPhotoRef,omitempty"`
	Status                   string   `json:"status"`
	CreatedAt                string   `json:"createdAt"`
}

func toTripResponse(t *model.Trip) TripResponse {
	cats := t.SpecialCategories
	if cats == nil {
		cats = []string{}
	}
	return TripResponse{
		ID:                       t.ID,
		OwnerUID:                 t.OwnerUID,
		OriginCountry:            t.OriginCountry,
		DestinationCountry:       t.DestinationCountry,
		DepartureAt:              t.DepartureAt.UTC().Format(time.RFC3339),
		DepartureTZ:              t.DepartureTZ,
		ArrivalAt:                t.ArrivalAt.UTC().Format(time.RFC3339),
		ArrivalTZ:                t.ArrivalTZ,
		ArrivalDate:              t.ArrivalDate,
		TotalCarryOnKg:           model.GramsToKg(t.TotalCarryOnG),
		AvailableCarryOnKg:       model.GramsToKg(t.AvailableCarryOnG),
		TotalCheckedKg:           model.GramsToKg(t.TotalCheckedG),
		AvailableCheckedKg:       model.GramsToKg(t.AvailableCheckedG),
		CanCarryFragile:          t.CanCarryFragile,
		CanHandleSpecialDelivery: t.CanHandleSpecialDelivery,
		SpecialCategories:        cats,
		TicketPhotoRef:           t.TicketPhotoRef,
		Status:                   string(t.Status),
		CreatedAt:                t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type BagItemResponse struct {
	ProductName             string   `json:"productName"`
	Link                    *string  `json:"link,omitempty"`
	Price                   float64  `json:"price"`
	Currency                string   `json:"currency"`
	WeightKg                float64  `json:"weightKg"`
	Quantity                int      `json:"quantity"`
	IsFragile               bool     `json:"isFragile"`
	RequiresSpecialDelivery bool     `json:"requiresSpecialDelivery"`
	SpecialDeliveryCategory *string  `json:"specialDeliveryCategory,omitempty"`
	Photos                  []string `json:"photos,omitempty"`
}

type RequestResponse struct {
	ID                  string            `json:"id"`
	OwnerUID            string            `json:"ownerUid"`
	FromCountry         string            `json:"fromCountry"`
	DestinationCountry  string            `json:"destinationCountry"`
	DeliveryWindowStart string            `json:"deliveryWindowStart"`
	DeliveryWindowEnd   string            `json:"deliveryWindowEnd"`
	Pickup              bool              `json:"pickup"`
	CarryOn             bool              `json:"carryOn"`
	TotalWeightKg       float64           `json:"totalWeightKg"`
	Status              string            `json:"status"`
	BagItems            []BagItemResponse `json:"bagItems"`
	CreatedAt           string            `json:"createdAt"`
}

func toRequestResponse(r *model.ShopperRequest) RequestResponse {
	out := RequestResponse{
		ID:                  r.ID,
		OwnerUID:            r.OwnerUID,
		FromCountry:         r.FromCountry,
		DestinationCountry:  r.DestinationCountry,
		DeliveryWindowStart: r.WindowStart,
		DeliveryWindowEnd:   r.WindowEnd,
		Pickup:              r.Pickup,
		CarryOn:             r.CarryOn,
		TotalWeightKg:       model.GramsToKg(r.TotalWeightG),
		Status:              string(r.Status),
		BagItems:            make([]BagItemResponse, 0, len(r.Items)),
		CreatedAt:           r.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, it := range r.Items {
		out.BagItems = append(out.BagItems, BagItemResponse{
			ProductName:             it.ProductName,
			Link:                    it.Link,
			Price:                   it.Price,
			Currency:                it.Currency,
			WeightKg:                model.GramsToKg(it.WeightG),
			Quantity:                it.Quantity,
			IsFragile:               it.IsFragile,
			RequiresSpecialDelivery: it.RequiresSpecialDelivery,
			SpecialDeliveryCategory: it.SpecialDeliveryCategory,
			Photos:                  it.Photos,
		})
	}
	return out
}

type MatchResponse struct {
	ID                 string   `json:"id,omitempty"`
	RequestID          string   `json:"requestId,omitempty"`
	TripID             string   `json:"tripId"`
	ShopperUID         string   `json:"shopperUid,omitempty"`
	TravelerUID        string   `json:"travelerUid"`
	Score              int      `json:"score"`
	Bucket             string   `json:"bucket"`
	ReservedKg         float64  `json:"reservedKg"`
	FitsCarryOn        bool     `json:"fitsCarryOn"`
	AvailableCarryOnKg float64  `json:"availableCarryOnKg"`
	AvailableCheckedKg float64  `json:"availableCheckedKg"`
	Rationale          []string `json:"rationale"`
	Status             string   `json:"status"`
	ExpiresAt          *string  `json:"expiresAt,omitempty"`
	RespondedAt        *string  `json:"respondedAt,omitempty"`
}

func toMatchResponse(m *model.Match) MatchResponse {
	rationale := m.Rationale
	if rationale == nil {
		rationale = []string{}
	}
	return MatchResponse{
		ID:                 m.ID,
		RequestID:          m.RequestID,
		TripID:             m.TripID,
		ShopperUID:         m.ShopperUID,
		TravelerUID:        m.TravelerUID,
		Score:              m.Score,
		Bucket:             string(m.Bucket),
		ReservedKg:         model.GramsToKg(m.ReservedG),
		FitsCarryOn:        m.FitsCarryOn,
		AvailableCarryOnKg: model.GramsToKg(m.AvailableCarryOnG),
		AvailableCheckedKg: model.GramsToKg(m.AvailableCheckedG),
		Rationale:          rationale,
		Status:             string(m.Status),
		ExpiresAt:          formatTime(m.ExpiresAt),
		RespondedAt:        formatTime(m.RespondedAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type ProposalResponse struct {
	Match MatchResponse `json:"match"`
	Trip  TripResponse  `json:"trip"`
}

type RejectionResponse = matching.Rejection

type SearchResponse struct {
	TotalWeightKg float64             `json:"totalWeightKg"`
	Bucket        string              `json:"bucket"`
	Matches       []ProposalResponse  `json:"matches"`
	Rejections    []RejectionResponse `json:"rejections,omitempty"`
}

func toSearchResponse(res *service.SearchResult) SearchResponse {
	out := SearchResponse{
		TotalWeightKg: res.Query.TotalWeightKg(),
		Bucket:        string(res.Query.RequiredBucket),
		Matches:       make([]ProposalResponse, 0, len(res.Proposals)),
		Rejections:    res.Rejections,
	}
	for i := range res.Proposals {
		p := &res.Proposals[i]
		out.Matches = append(out.Matches, ProposalResponse{
			Match: toMatchResponse(&p.Match),
			Trip:  toTripResponse(&p.Trip),
		})
	}
	return out
}

type SweepResponse struct {
	Expired []string `json:"expired"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
}

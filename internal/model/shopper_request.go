package model

import (
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
)

type RequestStatus string

const (
	RequestStatusDraft       RequestStatus = "draft"
	RequestStatusPublished   RequestStatus = "published"
	RequestStatusMarketplace RequestStatus = "marketplace"
	RequestStatusMatched     RequestStatus = "matched"
	RequestStatusFulfilled   RequestStatus = "fulfilled"
	RequestStatusCancelled   RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusDraft:       {RequestStatusPublished, RequestStatusMarketplace, RequestStatusCancelled},
	RequestStatusPublished:   {RequestStatusMarketplace, RequestStatusMatched, RequestStatusCancelled},
	RequestStatusMarketplace: {RequestStatusPublished, RequestStatusMatched, RequestStatusCancelled},
	// matched falls back to its publish mode when the accepted match is released
	RequestStatusMatched: {RequestStatusFulfilled, RequestStatusCancelled, RequestStatusPublished, RequestStatusMarketplace},
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, to := range requestTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Searching reports whether the request is open for booking.
func (s RequestStatus) Searching() bool {
	return s == RequestStatusPublished || s == RequestStatusMarketplace
}

func RequestSourcesFor(next RequestStatus) []RequestStatus {
	var out []RequestStatus
	for _, from := range []RequestStatus{RequestStatusDraft, RequestStatusPublished, RequestStatusMarketplace, RequestStatusMatched} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

func RequestTransitionError(from, to RequestStatus) error {
	return &domainerr.TransitionError{Entity: "request", From: string(from), To: string(to)}
}

// ShopperRequest is a shipment a shopper wants carried. WindowStart and WindowEnd are
// inclusive calendar dates. TotalWeightG is derived from Items when the request is normalized.
// Pickup means someone other than the shopper collects on arrival. Version is bumped by every
// ledger write so bookings conflict with a concurrent status change.
type ShopperRequest struct {
	ID                 string        `gorm:"primaryKey;size:36"`
	OwnerUID           string        `gorm:"column:owner_uid;size:128;index;not null"`
	FromCountry        string        `gorm:"column:from_country;size:2;not null"`
	DestinationCountry string        `gorm:"column:destination_country;size:2;not null"`
	WindowStart        string        `gorm:"column:window_start;size:10;not null"`
	WindowEnd          string        `gorm:"column:window_end;size:10;not null"`
	Pickup             bool          `gorm:"column:pickup"`
	CarryOn            bool          `gorm:"column:carry_on"`
	TotalWeightG       int64         `gorm:"column:total_weight_g;not null"`
	Status             RequestStatus `gorm:"column:status;size:16;index;not null"`
	PublishMode        RequestStatus `gorm:"column:publish_mode;size:16"`
	Version            int64         `gorm:"column:version;not null;default:0"`
	Items              []BagItem     `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time     `gorm:"autoCreateTime"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime"`
}

func (ShopperRequest) TableName() string {
	return "shopper_requests"
}

func (r *ShopperRequest) RequiredBucket() Bucket {
	if r.CarryOn {
		return BucketCarryOn
	}
	return BucketChecked
}

// ReopenStatus is where the request returns when its reservation is released.
func (r *ShopperRequest) ReopenStatus() RequestStatus {
	if r.PublishMode == RequestStatusMarketplace {
		return RequestStatusMarketplace
	}
	return RequestStatusPublished
}

type BagItem struct {
	ID                      uint64   `gorm:"primaryKey;autoIncrement"`
	RequestID               string   `gorm:"column:request_id;size:36;index;not null"`
	Position                int      `gorm:"column:position;not null"`
	ProductName             string   `gorm:"column:product_name;size:255;not null"`
	Link                    *string  `gorm:"column:link;type:text"`
	Price                   float64  `gorm:"column:price"`
	Currency                string   `gorm:"column:currency;size:3"`
	WeightG                 int64    `gorm:"column:weight_g;not null"`
	Quantity                int      `gorm:"column:quantity;not null"`
	IsFragile               bool     `gorm:"column:is_fragile"`
	RequiresSpecialDelivery bool     `gorm:"column:requires_special_delivery"`
	SpecialDeliveryCategory *string  `gorm:"column:special_delivery_category;size:64"`
	Photos                  []string `gorm:"column:photos;serializer:json;type:text"`
}

func (BagItem) TableName() string {
	return "bag_items"
}

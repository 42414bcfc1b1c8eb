package model

import (
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
)

type MatchStatus string

const (
	MatchStatusProposed  MatchStatus = "proposed"
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusAccepted  MatchStatus = "accepted"
	MatchStatusDeclined  MatchStatus = "declined"
	MatchStatusExpired   MatchStatus = "expired"
	MatchStatusCancelled MatchStatus = "cancelled"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchStatusProposed: {MatchStatusPending},
	MatchStatusPending:  {MatchStatusAccepted, MatchStatusDeclined, MatchStatusExpired, MatchStatusCancelled},
	MatchStatusAccepted: {MatchStatusCancelled},
}

func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	for _, to := range matchTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// HoldsReservation reports whether a match in this status has capacity deducted from its trip.
func (s MatchStatus) HoldsReservation() bool {
	return s == MatchStatusPending || s == MatchStatusAccepted
}

// MatchSourcesFor lists every status that may legally move to next.
func MatchSourcesFor(next MatchStatus) []MatchStatus {
	var out []MatchStatus
	for _, from := range []MatchStatus{MatchStatusProposed, MatchStatusPending, MatchStatusAccepted} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

func MatchTransitionError(from, to MatchStatus) error {
	return &domainerr.TransitionError{Entity: "match", From: string(from), To: string(to)}
}

type Bucket string

const (
	BucketCarryOn Bucket = "carry_on"
	BucketChecked Bucket = "checked"
)

func (b Bucket) Label() string {
	if b == BucketCarryOn {
		return "carry-on"
	}
	return "check-in"
}

// Match pairs one shopper request with one trip. ReservedG is the exact weight deducted
// from the trip's Bucket while the match holds a reservation.
type Match struct {
	ID                string      `gorm:"primaryKey;size:36"`
	RequestID         string      `gorm:"column:request_id;size:36;index;not null"`
	TripID            string      `gorm:"column:trip_id;size:36;index;not null"`
	ShopperUID        string      `gorm:"column:shopper_uid;size:128;index;not null"`
	TravelerUID       string      `gorm:"column:traveler_uid;size:128;index;not null"`
	Score             int         `gorm:"column:score;not null"`
	Bucket            Bucket      `gorm:"column:bucket;size:16;not null"`
	ReservedG         int64       `gorm:"column:reserved_g;not null"`
	FitsCarryOn       bool        `gorm:"column:fits_carry_on"`
	AvailableCarryOnG int64       `gorm:"column:available_carry_on_g"`
	AvailableCheckedG int64       `gorm:"column:available_checked_g"`
	Rationale         []string    `gorm:"column:rationale;serializer:json;type:text"`
	Status            MatchStatus `gorm:"column:status;size:16;index;not null"`
	ActiveKey         *string     `gorm:"column:active_key;size:80;uniqueIndex"`
	ExpiresAt         *time.Time  `gorm:"column:expires_at;index"`
	RespondedAt       *time.Time  `gorm:"column:responded_at"`
	CreatedAt         time.Time   `gorm:"autoCreateTime"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime"`
}

func (Match) TableName() string {
	return "matches"
}

// ActiveKeyFor is the value of the unique active_key column while a match holds a reservation.
// Terminal matches store NULL so a pair can be booked again later.
func ActiveKeyFor(requestID, tripID string) string {
	return requestID + ":" + tripID
}

func (m *Match) IsParty(uid string) bool {
	return uid != "" && (uid == m.ShopperUID || uid == m.TravelerUID)
}

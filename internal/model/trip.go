package model

import (
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
)

type TripStatus string

const (
	TripStatusPending   TripStatus = "pending"
	TripStatusActive    TripStatus = "active"
	TripStatusAirborne  TripStatus = "airborne"
	TripStatusArrived   TripStatus = "arrived"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusPending:  {TripStatusActive, TripStatusCancelled},
	TripStatusActive:   {TripStatusAirborne, TripStatusCancelled},
	TripStatusAirborne: {TripStatusArrived},
	TripStatusArrived:  {TripStatusCompleted},
}

func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, to := range tripTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Discoverable trips show up in candidate search; only active ones are bookable.
func (s TripStatus) Discoverable() bool {
	return s == TripStatusPending || s == TripStatusActive
}

// Revisable trips may still change declared capacity and capabilities.
func (s TripStatus) Revisable() bool {
	return s == TripStatusPending || s == TripStatusActive
}

func TripSourcesFor(next TripStatus) []TripStatus {
	var out []TripStatus
	for _, from := range []TripStatus{TripStatusPending, TripStatusActive, TripStatusAirborne, TripStatusArrived} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

func TripTransitionError(from, to TripStatus) error {
	return &domainerr.TransitionError{Entity: "trip", From: string(from), To: string(to)}
}

// Trip is one traveler itinerary leg. Capacities are kept in grams; Total*G is the
// declared allowance and Available*G what is left after reservations.
type Trip struct {
	ID                       string     `gorm:"primaryKey;size:36"`
	OwnerUID                 string     `gorm:"column:owner_uid;size:128;index;not null"`
	OriginCountry            string     `gorm:"column:origin_country;size:2;not null;index:idx_trips_route,priority:1"`
	DestinationCountry       string     `gorm:"column:destination_country;size:2;not null;index:idx_trips_route,priority:2"`
	ArrivalDate              string     `gorm:"column:arrival_date;size:10;not null;index:idx_trips_route,priority:3"`
	DepartureAt              time.Time  `gorm:"column:departure_at;not null"`
	DepartureTZ              string     `gorm:"column:departure_tz;size:64;not null"`
	ArrivalAt                time.Time  `gorm:"column:arrival_at;not null"`
	ArrivalTZ                string     `gorm:"column:arrival_tz;size:64;not null"`
	TotalCarryOnG            int64      `gorm:"column:total_carry_on_g;not null"`
	AvailableCarryOnG        int64      `gorm:"column:available_carry_on_g;not null"`
	TotalCheckedG            int64      `gorm:"column:total_checked_g;not null"`
	AvailableCheckedG        int64      `gorm:"column:available_checked_g;not null"`
	CanCarryFragile          bool       `gorm:"column:can_carry_fragile"`
	CanHandleSpecialDelivery bool       `gorm:"column:can_handle_special_delivery"`
	SpecialCategories        []string   `gorm:"column:special_categories;serializer:json;type:text"`
	TicketPhotoRef           *string    `gorm:"column:ticket_photo_ref;size:512"`
	Status                   TripStatus `gorm:"column:status;size:16;index;not null"`
	Version                  int64      `gorm:"column:version;not null;default:0"`
	CreatedAt                time.Time  `gorm:"autoCreateTime"`
	UpdatedAt                time.Time  `gorm:"autoUpdateTime"`
}

func (Trip) TableName() string {
	return "trips"
}

func (t *Trip) Available(b Bucket) int64 {
	if b == BucketCarryOn {
		return t.AvailableCarryOnG
	}
	return t.AvailableCheckedG
}

func (t *Trip) Total(b Bucket) int64 {
	if b == BucketCarryOn {
		return t.TotalCarryOnG
	}
	return t.TotalCheckedG
}

func (t *Trip) Reserved(b Bucket) int64 {
	return t.Total(b) - t.Available(b)
}

func (t *Trip) SupportsCategory(category string) bool {
	for _, c := range t.SpecialCategories {
		if c == category {
			return true
		}
	}
	return false
}

// CheckInvariants verifies the ledger invariants that every persisted trip must hold.
func (t *Trip) CheckInvariants() error {
	if !t.DepartureAt.UTC().Before(t.ArrivalAt.UTC()) {
		return domainerr.Invalid("arrivalAt", "arrival must be after departure")
	}
	for _, b := range []Bucket{BucketCarryOn, BucketChecked} {
		if t.Available(b) < 0 {
			return domainerr.Invalid(string(b), "available capacity cannot be negative")
		}
		if t.Available(b) > t.Total(b) {
			return domainerr.Invalid(string(b), "available capacity exceeds declared capacity")
		}
	}
	return nil
}

// LocalDate renders an instant as a calendar date in the named IANA zone.
func LocalDate(at time.Time, tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return at.In(loc).Format(DateLayout), nil
}

const DateLayout = "2006-01-02"

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"github.com/shinyyama/tripmatch-backend/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestCreateTripDerivesLocalArrivalDate(t *testing.T) {
	f := newFixture(t)
	dep := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	trip, err := f.trips.Create(context.Background(), traveler, TripInput{
		OriginCountry:      "us",
		DestinationCountry: "NG",
		DepartureAt:        dep,
		DepartureTZ:        "America/New_York",
		ArrivalAt:          dep.Add(10 * time.Hour), // 00:00 UTC is 01:00 in Lagos on Mar 2
		ArrivalTZ:          "Africa/Lagos",
		CarryOnKg:          7,
		CheckedKg:          23,
		SpecialCategories:  []string{"Pharma", "pharma", " cold-chain"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if trip.ArrivalDate != "2025-03-02" || trip.Status != model.TripStatusPending {
		t.Fatalf("trip=%+v", trip)
	}
	if trip.AvailableCheckedG != 23000 || trip.TotalCheckedG != 23000 {
		t.Fatalf("capacity=%d/%d", trip.AvailableCheckedG, trip.TotalCheckedG)
	}
	if strings.Join(trip.SpecialCategories, ",") != "cold-chain,pharma" {
		t.Fatalf("categories=%v", trip.SpecialCategories)
	}
}

func TestCreateTripValidation(t *testing.T) {
	dep := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	base := TripInput{OriginCountry: "US", DestinationCountry: "NG", DepartureAt: dep, DepartureTZ: "UTC", ArrivalAt: dep.Add(time.Hour), ArrivalTZ: "UTC", CheckedKg: 10}
	tests := []struct {
		name string
		edit func(in *TripInput)
	}{
		{"bad origin", func(in *TripInput) { in.OriginCountry = "ZZ" }},
		{"bad zone", func(in *TripInput) { in.ArrivalTZ = "Mars/Olympus" }},
		{"empty zone", func(in *TripInput) { in.DepartureTZ = "" }},
		{"arrival before departure", func(in *TripInput) { in.ArrivalAt = dep.Add(-time.Hour) }},
		{"negative capacity", func(in *TripInput) { in.CarryOnKg = -1 }},
		{"no capacity", func(in *TripInput) { in.CheckedKg = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := base
			tt.edit(&in)
			if _, err := f.trips.Create(context.Background(), traveler, in); !errors.Is(err, ErrValidation) {
				t.Fatalf("err=%v want validation", err)
			}
		})
	}
	f := newFixture(t)
	if _, err := f.trips.Create(context.Background(), shopperA, base); !errors.Is(err, ErrForbidden) {
		t.Fatalf("shopper creating trip err=%v", err)
	}
}

func TestTripLifecycle(t *testing.T) {
	f := newFixture(t)
	f.addTrip("trip", traveler.UID, 10000, model.TripStatusPending)
	ctx := context.Background()

	if _, err := f.trips.MarkAirborne(ctx, traveler, "trip"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->airborne err=%v", err)
	}
	if _, err := f.trips.Activate(ctx, traveler2, "trip"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger activate err=%v", err)
	}
	steps := []struct {
		fn   func(context.Context, Actor, string) (*model.Trip, error)
		want model.TripStatus
	}{
		{f.trips.Activate, model.TripStatusActive},
		{f.trips.MarkAirborne, model.TripStatusAirborne},
		{f.trips.MarkArrived, model.TripStatusArrived},
		{f.trips.Complete, model.TripStatusCompleted},
	}
	for _, s := range steps {
		got, err := s.fn(ctx, traveler, "trip")
		if err != nil {
			t.Fatalf("to %s: %v", s.want, err)
		}
		if got.Status != s.want {
			t.Fatalf("status=%s want %s", got.Status, s.want)
		}
	}
	if _, err := f.trips.Cancel(ctx, traveler, "trip"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel completed trip err=%v", err)
	}
}

func TestTripCancelReleasesMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTrip("trip", traveler.UID, 10000, model.TripStatusActive)
	f.addRequest("req-a", shopperA.UID, 3000, model.RequestStatusPublished)
	f.addRequest("req-b", shopperB.UID, 2000, model.RequestStatusMarketplace)

	ma, _ := f.booking.Book(ctx, shopperA, "req-a", "trip")
	mb, _ := f.booking.Book(ctx, shopperB, "req-b", "trip")
	if _, err := f.booking.Respond(ctx, traveler, mb.ID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}

	trip, err := f.trips.Cancel(ctx, traveler, "trip")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if trip.Status != model.TripStatusCancelled || trip.AvailableCheckedG != 10000 {
		t.Fatalf("trip=%s available=%d", trip.Status, trip.AvailableCheckedG)
	}
	for _, id := range []string{ma.ID, mb.ID} {
		if st := f.store.match(id).Status; st != model.MatchStatusCancelled {
			t.Fatalf("match %s status=%s", id, st)
		}
		if f.index.has(id) {
			t.Fatalf("match %s still indexed", id)
		}
	}
	if st := f.store.request("req-b").Status; st != model.RequestStatusMarketplace {
		t.Fatalf("accepted request should reopen to marketplace, got %s", st)
	}
	if st := f.store.request("req-a").Status; st != model.RequestStatusPublished {
		t.Fatalf("pending request status=%s", st)
	}
	f.checkConservation(t)
}

func TestAirborneExpiresPendingAndCompleteFulfills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTrip("trip", traveler.UID, 10000, model.TripStatusActive)
	f.addRequest("req-a", shopperA.UID, 3000, model.RequestStatusPublished)
	f.addRequest("req-b", shopperB.UID, 2000, model.RequestStatusPublished)

	ma, _ := f.booking.Book(ctx, shopperA, "req-a", "trip")
	mb, _ := f.booking.Book(ctx, shopperB, "req-b", "trip")
	if _, err := f.booking.Respond(ctx, traveler, ma.ID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}

	trip, err := f.trips.MarkAirborne(ctx, traveler, "trip")
	if err != nil {
		t.Fatalf("airborne: %v", err)
	}
	if st := f.store.match(mb.ID).Status; st != model.MatchStatusExpired {
		t.Fatalf("pending match status=%s", st)
	}
	if trip.AvailableCheckedG != 7000 {
		t.Fatalf("available=%d want 7000", trip.AvailableCheckedG)
	}

	if _, err := f.trips.MarkArrived(ctx, traveler, "trip"); err != nil {
		t.Fatalf("arrived: %v", err)
	}
	if _, err := f.trips.Complete(ctx, traveler, "trip"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if st := f.store.request("req-a").Status; st != model.RequestStatusFulfilled {
		t.Fatalf("request status=%s want fulfilled", st)
	}
	f.checkConservation(t)
}

func TestReviseKeepsReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTrip("trip", traveler.UID, 10000, model.TripStatusActive)
	f.addRequest("req", shopperA.UID, 6000, model.RequestStatusPublished)
	if _, err := f.booking.Book(ctx, shopperA, "req", "trip"); err != nil {
		t.Fatalf("book: %v", err)
	}

	_, err := f.trips.Revise(ctx, traveler, "trip", TripRevision{CheckedKg: floatPtr(5)})
	var ve *domainerr.ValidationError
	if !errors.As(err, &ve) || ve.Field != "availableCheckedKg" {
		t.Fatalf("err=%v want availableCheckedKg validation", err)
	}

	fragile := true
	got, err := f.trips.Revise(ctx, traveler, "trip", TripRevision{CheckedKg: floatPtr(15), CanCarryFragile: &fragile})
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if got.TotalCheckedG != 15000 || got.AvailableCheckedG != 9000 || !got.CanCarryFragile {
		t.Fatalf("trip=%+v", got)
	}
	f.checkConservation(t)

	if _, err := f.trips.Revise(ctx, traveler2, "trip", TripRevision{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger revise err=%v", err)
	}
}

func TestAttachTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTrip("trip", traveler.UID, 10000, model.TripStatusPending)

	got, err := f.trips.AttachTicket(ctx, traveler, "trip", "boarding.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if got.TicketPhotoRef == nil || !strings.HasPrefix(*got.TicketPhotoRef, "https://files.test/tickets/trip/") {
		t.Fatalf("ref=%v", got.TicketPhotoRef)
	}
	if ref := f.store.trip("trip").TicketPhotoRef; ref == nil || *ref != *got.TicketPhotoRef {
		t.Fatalf("stored ref=%v", ref)
	}
	if len(f.uploader.objects) != 1 {
		t.Fatalf("uploads=%d", len(f.uploader.objects))
	}

	if _, err := f.trips.AttachTicket(ctx, traveler, "trip", "notes.txt", "text/plain", strings.NewReader("x")); !errors.Is(err, ErrValidation) {
		t.Fatalf("text upload err=%v", err)
	}
}

func TestTripRevisionUsesCreateFieldNames(t *testing.T) {
	var rev TripRevision
	if err := json.Unmarshal([]byte(`{"availableCarryOnKg":5,"availableCheckedKg":15}`), &rev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rev.CarryOnKg == nil || *rev.CarryOnKg != 5 || rev.CheckedKg == nil || *rev.CheckedKg != 15 {
		t.Fatalf("rev=%+v", rev)
	}
}

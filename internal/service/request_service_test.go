package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/model"
)

func samplePayload() matching.RequestPayload {
	return matching.RequestPayload{
		FromCountry:         "US",
		DestinationCountry:  "NG",
		DeliveryWindowStart: "2025-03-01",
		DeliveryWindowEnd:   "2025-03-09",
		BagItems: []matching.BagItemPayload{
			{ProductName: "Laptop", Price: 999, Currency: "USD", WeightKg: 2.2, IsFragile: true},
			{ProductName: "Sneakers", Price: 120, Currency: "USD", WeightKg: 1.1},
		},
	}
}

func TestRequestCreateAndPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.requests.Create(ctx, shopperA, samplePayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != model.RequestStatusDraft || req.TotalWeightG != 3300 || len(req.Items) != 2 {
		t.Fatalf("req=%+v", req)
	}
	if req.Items[0].RequestID != req.ID {
		t.Fatalf("items not linked to request")
	}

	if _, err := f.requests.Publish(ctx, shopperA, req.ID, model.RequestStatusMatched); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad mode err=%v", err)
	}
	if _, err := f.requests.Publish(ctx, shopperB, req.ID, model.RequestStatusPublished); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger publish err=%v", err)
	}
	pub, err := f.requests.Publish(ctx, shopperA, req.ID, model.RequestStatusMarketplace)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.Status != model.RequestStatusMarketplace || f.store.request(req.ID).PublishMode != model.RequestStatusMarketplace {
		t.Fatalf("status=%s mode=%s", pub.Status, f.store.request(req.ID).PublishMode)
	}

	if _, err := f.requests.Get(ctx, traveler, req.ID); err != nil {
		t.Fatalf("traveler should see an open request: %v", err)
	}
	if _, err := f.requests.Get(ctx, shopperB, req.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other shopper get err=%v", err)
	}
}

func TestRequestCreateRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)
	p := samplePayload()
	p.BagItems[1].WeightKg = 0
	if _, err := f.requests.Create(context.Background(), shopperA, p); !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v want validation", err)
	}
	if len(f.store.requests) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestRequestCancelReleasesReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTrip("trip-1", traveler.UID, 10000, model.TripStatusActive)
	f.addTrip("trip-2", traveler2.UID, 10000, model.TripStatusActive)
	f.addRequest("req", shopperA.UID, 4000, model.RequestStatusPublished)

	m1, _ := f.booking.Book(ctx, shopperA, "req", "trip-1")
	m2, _ := f.booking.Book(ctx, shopperA, "req", "trip-2")

	got, err := f.requests.Cancel(ctx, shopperA, "req")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.RequestStatusCancelled {
		t.Fatalf("status=%s", got.Status)
	}
	for _, id := range []string{m1.ID, m2.ID} {
		if st := f.store.match(id).Status; st != model.MatchStatusCancelled {
			t.Fatalf("match %s status=%s", id, st)
		}
	}
	if f.store.trip("trip-1").AvailableCheckedG != 10000 || f.store.trip("trip-2").AvailableCheckedG != 10000 {
		t.Fatalf("capacity not restored")
	}
	if _, err := f.requests.Cancel(ctx, shopperA, "req"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel err=%v", err)
	}
	f.checkConservation(t)
}

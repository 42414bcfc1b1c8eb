package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shinyyama/tripmatch-backend/internal/config"
	"github.com/shinyyama/tripmatch-backend/internal/db"
	appmw "github.com/shinyyama/tripmatch-backend/internal/middleware"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
	"gorm.io/gorm"
)

type seedTraveler struct {
	UID     string
	Average float64
	Count   int
}

type seedTrip struct {
	Owner       string
	From, To    string
	FromTZ      string
	ToTZ        string
	DaysOut     int
	FlightHours int
	CarryOnKg   float64
	CheckedKg   float64
	Fragile     bool
	Special     []string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("trips already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	travelers, trips := buildSeed()
	now := time.Now().UTC()
	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ratings := repository.NewRatingRepository(tx)
		for _, tr := range travelers {
			if tr.Count == 0 {
				continue
			}
			if err := ratings.Upsert(ctx, &model.TravelerRating{OwnerUID: tr.UID, Average: tr.Average, Count: tr.Count}); err != nil {
				return fmt.Errorf("rating %s: %w", tr.UID, err)
			}
		}
		repo := repository.NewTripRepository(tx)
		for _, st := range trips {
			t, err := st.build(now)
			if err != nil {
				return err
			}
			if err := repo.Create(ctx, t); err != nil {
				return fmt.Errorf("insert trip %s->%s: %w", st.From, st.To, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("seeded %d trips and %d traveler ratings", len(trips), len(travelers))

	if cfg.AuthProvider == "jwt" {
		return printTokens(cfg.JWTSecret, travelers)
	}
	return nil
}

func buildSeed() ([]seedTraveler, []seedTrip) {
	travelers := []seedTraveler{
		{UID: "seed-traveler-ada", Average: 4.9, Count: 31},
		{UID: "seed-traveler-kofi", Average: 4.2, Count: 8},
		{UID: "seed-traveler-lina", Average: 3.6, Count: 5},
		// no rating row: ranks with neutral reliability
		{UID: "seed-traveler-new"},
	}
	trips := []seedTrip{
		{Owner: "seed-traveler-ada", From: "US", To: "NG", FromTZ: "America/New_York", ToTZ: "Africa/Lagos", DaysOut: 5, FlightHours: 12, CarryOnKg: 7, CheckedKg: 23, Fragile: true},
		{Owner: "seed-traveler-ada", From: "GB", To: "NG", FromTZ: "Europe/London", ToTZ: "Africa/Lagos", DaysOut: 19, FlightHours: 7, CarryOnKg: 7, CheckedKg: 46, Special: []string{"pharma"}},
		{Owner: "seed-traveler-kofi", From: "US", To: "GH", FromTZ: "America/New_York", ToTZ: "Africa/Accra", DaysOut: 8, FlightHours: 11, CheckedKg: 23},
		{Owner: "seed-traveler-kofi", From: "DE", To: "KE", FromTZ: "Europe/Berlin", ToTZ: "Africa/Nairobi", DaysOut: 12, FlightHours: 9, CarryOnKg: 8, CheckedKg: 10, Fragile: true},
		{Owner: "seed-traveler-lina", From: "US", To: "NG", FromTZ: "America/Chicago", ToTZ: "Africa/Lagos", DaysOut: 6, FlightHours: 15, CarryOnKg: 5, CheckedKg: 12},
		{Owner: "seed-traveler-new", From: "AE", To: "ZA", FromTZ: "Asia/Dubai", ToTZ: "Africa/Johannesburg", DaysOut: 9, FlightHours: 8, CarryOnKg: 7, CheckedKg: 30, Special: []string{"cold-chain"}},
	}
	return travelers, trips
}

func (st seedTrip) build(now time.Time) (*model.Trip, error) {
	dep := now.Truncate(time.Hour).Add(time.Duration(st.DaysOut) * 24 * time.Hour)
	arr := dep.Add(time.Duration(st.FlightHours) * time.Hour)
	arrivalDate, err := model.LocalDate(arr, st.ToTZ)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", st.ToTZ, err)
	}
	t := &model.Trip{
		ID:                       uuid.NewString(),
		OwnerUID:                 st.Owner,
		OriginCountry:            st.From,
		DestinationCountry:       st.To,
		ArrivalDate:              arrivalDate,
		DepartureAt:              dep,
		DepartureTZ:              st.FromTZ,
		ArrivalAt:                arr,
		ArrivalTZ:                st.ToTZ,
		TotalCarryOnG:            model.KgToGrams(st.CarryOnKg),
		AvailableCarryOnG:        model.KgToGrams(st.CarryOnKg),
		TotalCheckedG:            model.KgToGrams(st.CheckedKg),
		AvailableCheckedG:        model.KgToGrams(st.CheckedKg),
		CanCarryFragile:          st.Fragile,
		CanHandleSpecialDelivery: len(st.Special) > 0,
		SpecialCategories:        st.Special,
		Status:                   model.TripStatusActive,
	}
	return t, t.CheckInvariants()
}

func shouldSeed(ctx context.Context, gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.WithContext(ctx).Model(&model.Trip{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count trips: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	force := os.Getenv("FORCE_SEED")
	return strings.EqualFold(force, "true"), nil
}

// printTokens issues day-long bearer tokens so the seeded data can be exercised with curl.
func printTokens(secret string, travelers []seedTraveler) error {
	v, err := appmw.NewJWTVerifier(secret)
	if err != nil {
		return err
	}
	type who struct{ uid, role string }
	people := []who{{"seed-shopper", "shopper"}, {"seed-scheduler", "scheduler"}}
	for _, tr := range travelers {
		people = append(people, who{tr.UID, "traveler"})
	}
	for _, p := range people {
		tok, err := v.Sign(p.uid, p.role, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("%-20s %-10s %s\n", p.uid, p.role, tok)
	}
	return nil
}

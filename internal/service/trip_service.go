package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
	"github.com/shinyyama/tripmatch-backend/internal/storage"
)

type TripInput struct {
	OriginCountry            string    `json:"originCountry"`
	DestinationCountry       string    `json:"destinationCountry"`
	DepartureAt              time.Time `json:"departureAt"`
	DepartureTZ              string    `json:"departureTimezone"`
	ArrivalAt                time.Time `json:"arrivalAt"`
	ArrivalTZ                string    `json:"arrivalTimezone"`
	CarryOnKg                float64   `json:"availableCarryOnKg"`
	CheckedKg                float64   `json:"availableCheckedKg"`
	CanCarryFragile          bool      `json:"canCarryFragile"`
	CanHandleSpecialDelivery bool      `json:"canHandleSpecialDelivery"`
	SpecialCategories        []string  `json:"specialCategories"`
}

// TripRevision changes declared capacity or capabilities; nil fields are left alone.
type TripRevision struct {
	CarryOnKg                *float64  `json:"availableCarryOnKg,omitempty"`
	CheckedKg                *float64  `json:"availableCheckedKg,omitempty"`
	CanCarryFragile          *bool     `json:"canCarryFragile,omitempty"`
	CanHandleSpecialDelivery *bool     `json:"canHandleSpecialDelivery,omitempty"`
	SpecialCategories        *[]string `json:"specialCategories,omitempty"`
}

type TripService interface {
	Create(ctx context.Context, actor Actor, in TripInput) (*model.Trip, error)
	Get(ctx context.Context, id string) (*model.Trip, error)
	ListMine(ctx context.Context, actor Actor) ([]model.Trip, error)
	Activate(ctx context.Context, actor Actor, id string) (*model.Trip, error)
	Cancel(ctx context.Context, actor Actor, id string) (*model.Trip, error)
	MarkAirborne(ctx context.Context, actor Actor, id string) (*model.Trip, error)
	MarkArrived(ctx context.Context, actor Actor, id string) (*model.Trip, error)
	Complete(ctx context.Context, actor Actor, id string) (*model.Trip, error)
	Revise(ctx context.Context, actor Actor, id string, rev TripRevision) (*model.Trip, error)
	AttachTicket(ctx context.Context, actor Actor, id, filename, contentType string, body io.Reader) (*model.Trip, error)
}

type tripService struct {
	trips     repository.TripRepository
	ledger    repository.LedgerRepository
	index     repository.PendingIndex
	uploader  storage.Uploader
	supported matching.Supported
	opts      BookingOptions
}

func NewTripService(trips repository.TripRepository, ledger repository.LedgerRepository, index repository.PendingIndex, uploader storage.Uploader, supported matching.Supported, opts BookingOptions) TripService {
	return &tripService{trips: trips, ledger: ledger, index: index, uploader: uploader, supported: supported, opts: opts.withDefaults()}
}

func (s *tripService) Create(ctx context.Context, actor Actor, in TripInput) (*model.Trip, error) {
	if err := actor.require(RoleTraveler); err != nil {
		return nil, err
	}
	origin := strings.ToUpper(strings.TrimSpace(in.OriginCountry))
	if _, ok := s.supported.Origins[origin]; !ok {
		return nil, domainerr.Invalid("originCountry", "unsupported departure country %q", in.OriginCountry)
	}
	dest := strings.ToUpper(strings.TrimSpace(in.DestinationCountry))
	if _, ok := s.supported.Destinations[dest]; !ok {
		return nil, domainerr.Invalid("destinationCountry", "unsupported destination country %q", in.DestinationCountry)
	}
	if _, err := time.LoadLocation(in.DepartureTZ); err != nil || in.DepartureTZ == "" {
		return nil, domainerr.Invalid("departureTimezone", "unknown IANA timezone %q", in.DepartureTZ)
	}
	arrivalDate, err := model.LocalDate(in.ArrivalAt, in.ArrivalTZ)
	if err != nil || in.ArrivalTZ == "" {
		return nil, domainerr.Invalid("arrivalTimezone", "unknown IANA timezone %q", in.ArrivalTZ)
	}
	carryOn, err := bucketGrams("availableCarryOnKg", in.CarryOnKg)
	if err != nil {
		return nil, err
	}
	checked, err := bucketGrams("availableCheckedKg", in.CheckedKg)
	if err != nil {
		return nil, err
	}
	if carryOn == 0 && checked == 0 {
		return nil, domainerr.Invalid("availableCheckedKg", "declare capacity in at least one bucket")
	}

	t := &model.Trip{
		ID:                       uuid.NewString(),
		OwnerUID:                 actor.UID,
		OriginCountry:            origin,
		DestinationCountry:       dest,
		ArrivalDate:              arrivalDate,
		DepartureAt:              in.DepartureAt.UTC(),
		DepartureTZ:              in.DepartureTZ,
		ArrivalAt:                in.ArrivalAt.UTC(),
		ArrivalTZ:                in.ArrivalTZ,
		TotalCarryOnG:            carryOn,
		AvailableCarryOnG:        carryOn,
		TotalCheckedG:            checked,
		AvailableCheckedG:        checked,
		CanCarryFragile:          in.CanCarryFragile,
		CanHandleSpecialDelivery: in.CanHandleSpecialDelivery,
		SpecialCategories:        matching.CanonicalCategories(in.SpecialCategories),
		Status:                   model.TripStatusPending,
	}
	if err := t.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := s.trips.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func bucketGrams(field string, kg float64) (int64, error) {
	if kg < 0 || kg > model.MaxBucketKg {
		return 0, domainerr.Invalid(field, "capacity must be between 0 and %g kg", model.MaxBucketKg)
	}
	return model.KgToGrams(kg), nil
}

func (s *tripService) Get(ctx context.Context, id string) (*model.Trip, error) {
	t, err := s.trips.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "trip", id)
	}
	return t, nil
}

func (s *tripService) ListMine(ctx context.Context, actor Actor) ([]model.Trip, error) {
	return s.trips.ListByOwner(ctx, actor.UID)
}

func (s *tripService) Activate(ctx context.Context, actor Actor, id string) (*model.Trip, error) {
	return s.transition(ctx, actor, id, model.TripStatusActive)
}

// Cancel releases every pending or accepted match on the trip and sends matched
// requests back to searching.
func (s *tripService) Cancel(ctx context.Context, actor Actor, id string) (*model.Trip, error) {
	return s.transition(ctx, actor, id, model.TripStatusCancelled)
}

// MarkAirborne expires matches the traveler never answered.
func (s *tripService) MarkAirborne(ctx context.Context, actor Actor, id string) (*model.Trip, error) {
	return s.transition(ctx, actor, id, model.TripStatusAirborne)
}

func (s *tripService) MarkArrived(ctx context.Context, actor Actor, id string) (*model.Trip, error) {
	return s.transition(ctx, actor, id, model.TripStatusArrived)
}

// Complete marks the requests carried under accepted matches as fulfilled.
func (s *tripService) Complete(ctx context.Context, actor Actor, id string) (*model.Trip, error) {
	return s.transition(ctx, actor, id, model.TripStatusCompleted)
}

func (s *tripService) owned(ctx context.Context, actor Actor, id string) (*model.Trip, error) {
	t, err := s.trips.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "trip", id)
	}
	if t.OwnerUID != actor.UID {
		return nil, forbidden("only the trip owner can change it")
	}
	return t, nil
}

func (s *tripService) transition(ctx context.Context, actor Actor, id string, to model.TripStatus) (*model.Trip, error) {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return nil, err
	}
	now := s.opts.Now()
	var out *model.Trip
	var released []string
	err := s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		released = released[:0]
		cur, err := l.GetTrip(id)
		if err != nil {
			return notFound(err, "trip", id)
		}
		if !cur.Status.CanTransitionTo(to) {
			return model.TripTransitionError(cur.Status, to)
		}
		ok, err := l.MoveTrip(id, []model.TripStatus{cur.Status}, to)
		if err != nil {
			return err
		}
		if !ok {
			return model.TripTransitionError(cur.Status, to)
		}

		switch to {
		case model.TripStatusCancelled:
			ms, err := l.MatchesByTrip(id, model.MatchStatusPending, model.MatchStatusAccepted)
			if err != nil {
				return err
			}
			for i := range ms {
				wasAccepted := ms[i].Status == model.MatchStatusAccepted
				done, err := releaseIn(l, &ms[i], model.MatchStatusCancelled, now)
				if err != nil {
					return err
				}
				if !done {
					continue
				}
				released = append(released, ms[i].ID)
				if wasAccepted {
					if err := reopenRequest(l, ms[i].RequestID); err != nil {
						return err
					}
				}
			}
		case model.TripStatusAirborne:
			ms, err := l.MatchesByTrip(id, model.MatchStatusPending)
			if err != nil {
				return err
			}
			for i := range ms {
				done, err := releaseIn(l, &ms[i], model.MatchStatusExpired, now)
				if err != nil {
					return err
				}
				if done {
					released = append(released, ms[i].ID)
				}
			}
		case model.TripStatusCompleted:
			ms, err := l.MatchesByTrip(id, model.MatchStatusAccepted)
			if err != nil {
				return err
			}
			for _, m := range ms {
				if _, err := l.MoveRequest(m.RequestID, []model.RequestStatus{model.RequestStatusMatched}, model.RequestStatusFulfilled); err != nil {
					return err
				}
			}
		}

		out, err = l.GetTrip(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, mid := range released {
		if s.index != nil {
			if err := s.index.Forget(ctx, mid); err != nil {
				log.Printf("[trip] rid=%s match=%s stage=index_forget err=%v", reqctx.RID(ctx), mid, err)
			}
		}
	}
	log.Printf("[trip] rid=%s trip=%s status=%s released=%d stage=transition", reqctx.RID(ctx), id, to, len(released))
	return out, nil
}

// Revise changes declared capacity without touching reservations: available becomes
// the new total minus what is already reserved, and the total may not drop below that.
func (s *tripService) Revise(ctx context.Context, actor Actor, id string, rev TripRevision) (*model.Trip, error) {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		var out *model.Trip
		err := s.ledger.Atomic(ctx, func(l repository.Ledger) error {
			cur, err := l.GetTrip(id)
			if err != nil {
				return notFound(err, "trip", id)
			}
			if !cur.Status.Revisable() {
				return fmt.Errorf("trip %s is %s and can no longer be revised: %w", id, cur.Status, ErrInvalidTransition)
			}
			next := *cur
			if rev.CarryOnKg != nil {
				if err := reviseBucket(&next, cur, model.BucketCarryOn, "availableCarryOnKg", *rev.CarryOnKg); err != nil {
					return err
				}
			}
			if rev.CheckedKg != nil {
				if err := reviseBucket(&next, cur, model.BucketChecked, "availableCheckedKg", *rev.CheckedKg); err != nil {
					return err
				}
			}
			if rev.CanCarryFragile != nil {
				next.CanCarryFragile = *rev.CanCarryFragile
			}
			if rev.CanHandleSpecialDelivery != nil {
				next.CanHandleSpecialDelivery = *rev.CanHandleSpecialDelivery
			}
			if rev.SpecialCategories != nil {
				next.SpecialCategories = matching.CanonicalCategories(*rev.SpecialCategories)
			}
			if err := next.CheckInvariants(); err != nil {
				return err
			}
			if err := l.ReviseTrip(&next, cur.Version); err != nil {
				return err
			}
			out = &next
			return nil
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Printf("[trip] rid=%s trip=%s attempt=%d stage=revise_conflict", reqctx.RID(ctx), id, attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("trip %s kept changing during revise: %w", id, ErrCapacityConflict)
}

func reviseBucket(next, cur *model.Trip, b model.Bucket, field string, kg float64) error {
	g, err := bucketGrams(field, kg)
	if err != nil {
		return err
	}
	reserved := cur.Reserved(b)
	if g < reserved {
		return domainerr.Invalid(field, "cannot drop below the %g kg already reserved", model.GramsToKg(reserved))
	}
	if b == model.BucketCarryOn {
		next.TotalCarryOnG, next.AvailableCarryOnG = g, g-reserved
	} else {
		next.TotalCheckedG, next.AvailableCheckedG = g, g-reserved
	}
	return nil
}

var ticketTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

func (s *tripService) AttachTicket(ctx context.Context, actor Actor, id, filename, contentType string, body io.Reader) (*model.Trip, error) {
	t, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if s.uploader == nil {
		return nil, errors.New("object storage is not configured")
	}
	ext, ok := ticketTypes[strings.ToLower(contentType)]
	if !ok {
		return nil, domainerr.Invalid("ticket", "unsupported content type %q", contentType)
	}
	if e := strings.ToLower(path.Ext(filename)); e != "" && e != ext && !(e == ".jpeg" && ext == ".jpg") {
		return nil, domainerr.Invalid("ticket", "file extension %s does not match %s", e, contentType)
	}
	object := fmt.Sprintf("tickets/%s/%s%s", t.ID, uuid.NewString(), ext)
	url, err := s.uploader.Upload(ctx, object, contentType, body)
	if err != nil {
		return nil, err
	}
	if err := s.trips.SetTicket(ctx, t.ID, url); err != nil {
		return nil, notFound(err, "trip", t.ID)
	}
	t.TicketPhotoRef = &url
	log.Printf("[trip] rid=%s trip=%s object=%s stage=ticket_uploaded", reqctx.RID(ctx), t.ID, object)
	return t, nil
}

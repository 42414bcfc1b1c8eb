package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
)

const (
	DefaultResponseWindow = 48 * time.Hour
	DefaultMaxAttempts    = 3
	DefaultSweepBatch     = 500
	DefaultSweepRetry     = 5 * time.Minute

	sweepRounds = 4
)

var errNotDue = errors.New("not_due")

type BookingOptions struct {
	ResponseWindow  time.Duration
	MaxAttempts     int
	SweepBatch      int
	// SweepRetryDelay is how far a failed expiry is pushed back in the pending index.
	SweepRetryDelay time.Duration
	Now             func() time.Time
	NewID           func() string
}

func (o BookingOptions) withDefaults() BookingOptions {
	if o.ResponseWindow <= 0 {
		o.ResponseWindow = DefaultResponseWindow
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.SweepBatch <= 0 {
		o.SweepBatch = DefaultSweepBatch
	}
	if o.SweepRetryDelay <= 0 {
		o.SweepRetryDelay = DefaultSweepRetry
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

type SweepResult struct {
	Expired []string
	Skipped int
	Failed  int
}

type BookingService interface {
	Book(ctx context.Context, actor Actor, requestID, tripID string) (*model.Match, error)
	Respond(ctx context.Context, actor Actor, matchID string, accept bool) (*model.Match, error)
	Cancel(ctx context.Context, actor Actor, matchID string) (*model.Match, error)
	ExpireStale(ctx context.Context, actor Actor) (*SweepResult, error)
}

type bookingService struct {
	requests repository.RequestRepository
	trips    repository.TripRepository
	matches  repository.MatchRepository
	ratings  repository.RatingRepository
	ledger   repository.LedgerRepository
	index    repository.PendingIndex
	scorer   *matching.Scorer
	opts     BookingOptions
}

func NewBookingService(requests repository.RequestRepository, trips repository.TripRepository, matches repository.MatchRepository, ratings repository.RatingRepository, ledger repository.LedgerRepository, index repository.PendingIndex, scorer *matching.Scorer, opts BookingOptions) BookingService {
	return &bookingService{
		requests: requests,
		trips:    trips,
		matches:  matches,
		ratings:  ratings,
		ledger:   ledger,
		index:    index,
		scorer:   scorer,
		opts:     opts.withDefaults(),
	}
}

// Book reserves the request's weight on the trip and records a pending match, or fails
// with ErrCapacityConflict when the trip can no longer hold it. A lost version race is
// retried while capacity remains sufficient.
func (s *bookingService) Book(ctx context.Context, actor Actor, requestID, tripID string) (*model.Match, error) {
	if err := actor.require(RoleShopper); err != nil {
		return nil, err
	}
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "request", requestID)
	}
	if req.OwnerUID != actor.UID {
		return nil, forbidden("only the request owner can book it")
	}
	if !req.Status.Searching() {
		return nil, model.RequestTransitionError(req.Status, model.RequestStatusMatched)
	}
	trip, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, notFound(err, "trip", tripID)
	}
	if trip.OwnerUID == req.OwnerUID {
		return nil, forbidden("cannot book your own trip")
	}
	ratings, err := s.ratings.GetMany(ctx, []string{trip.OwnerUID})
	if err != nil {
		log.Printf("[booking] rid=%s trip=%s stage=ratings_lookup err=%v", reqctx.RID(ctx), tripID, err)
		ratings = nil
	}

	q, err := matching.QueryFromRequest(req)
	if err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		m, err := s.reserve(ctx, req, q, tripID, ratings)
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Printf("[booking] rid=%s request=%s trip=%s attempt=%d stage=reserve_conflict", reqctx.RID(ctx), requestID, tripID, attempt)
			continue
		}
		if err != nil {
			if domainerr.Retryable(err) {
				log.Printf("[booking] rid=%s request=%s trip=%s stage=capacity_conflict", reqctx.RID(ctx), requestID, tripID)
			}
			return nil, err
		}
		s.track(ctx, m)
		log.Printf("[booking] rid=%s request=%s trip=%s match=%s reserved_g=%d stage=reserved", reqctx.RID(ctx), requestID, tripID, m.ID, m.ReservedG)
		return m, nil
	}
	log.Printf("[booking] rid=%s request=%s trip=%s stage=retries_exhausted", reqctx.RID(ctx), requestID, tripID)
	return nil, capacityConflict(tripID)
}

func (s *bookingService) reserve(ctx context.Context, req *model.ShopperRequest, q matching.MatchQuery, tripID string, ratings map[string]model.TravelerRating) (*model.Match, error) {
	var out *model.Match
	err := s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		trip, err := l.GetTrip(tripID)
		if err != nil {
			return notFound(err, "trip", tripID)
		}
		v := matching.Evaluate(q, trip)
		switch v.Failed {
		case "":
		case matching.RuleTripNotActive:
			return fmt.Errorf("trip %s is %s and not bookable: %w", trip.ID, trip.Status, ErrInvalidTransition)
		case matching.RuleInsufficientCapacity:
			return capacityConflict(trip.ID)
		default:
			return domainerr.Invalid("tripId", "trip cannot carry this shipment (%s)", v.Failed)
		}

		// the request may have been cancelled or matched since it was read above
		cur, err := l.GetRequest(req.ID)
		if err != nil {
			return notFound(err, "request", req.ID)
		}
		if !cur.Status.Searching() {
			return model.RequestTransitionError(cur.Status, model.RequestStatusMatched)
		}
		if err := l.TouchRequest(cur.ID, cur.Version); err != nil {
			return err
		}

		active, err := l.MatchesByRequest(req.ID, model.MatchStatusPending, model.MatchStatusAccepted)
		if err != nil {
			return err
		}
		for _, m := range active {
			if m.TripID == trip.ID {
				return model.MatchTransitionError(m.Status, model.MatchStatusPending)
			}
		}

		ranked := s.scorer.Rank(q, []matching.Candidate{{Trip: *trip, Fit: v.Fit}}, ratings)
		m := proposedMatch(q, ranked[0], req.ID, req.OwnerUID)
		now := s.opts.Now()
		expires := now.Add(s.opts.ResponseWindow)
		key := model.ActiveKeyFor(req.ID, trip.ID)
		m.ID = s.opts.NewID()
		m.Status = model.MatchStatusPending
		m.ActiveKey = &key
		m.ExpiresAt = &expires

		if err := l.DeductCapacity(trip.ID, q.RequiredBucket, q.TotalWeightG, trip.Version); err != nil {
			return err
		}
		if err := l.InsertMatch(&m); err != nil {
			if errors.Is(err, repository.ErrDuplicateActive) {
				return model.MatchTransitionError(model.MatchStatusPending, model.MatchStatusPending)
			}
			return err
		}
		out = &m
		return nil
	})
	return out, err
}

func (s *bookingService) Respond(ctx context.Context, actor Actor, matchID string, accept bool) (*model.Match, error) {
	if err := actor.require(RoleTraveler); err != nil {
		return nil, err
	}
	m, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, notFound(err, "match", matchID)
	}
	if m.TravelerUID != actor.UID {
		return nil, forbidden("only the traveler can respond to this match")
	}
	if !accept {
		return s.release(ctx, matchID, model.MatchStatusDeclined, nil)
	}

	now := s.opts.Now()
	if m.Status == model.MatchStatusPending && m.ExpiresAt != nil && !now.Before(*m.ExpiresAt) {
		if _, err := s.release(ctx, matchID, model.MatchStatusExpired, nil); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, model.MatchTransitionError(model.MatchStatusExpired, model.MatchStatusAccepted)
	}

	var out *model.Match
	var released []string
	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		released = released[:0]
		cur, err := l.GetMatch(matchID)
		if err != nil {
			return notFound(err, "match", matchID)
		}
		if !cur.Status.CanTransitionTo(model.MatchStatusAccepted) {
			return model.MatchTransitionError(cur.Status, model.MatchStatusAccepted)
		}
		ok, err := l.MoveMatch(cur.ID, []model.MatchStatus{cur.Status}, model.MatchStatusAccepted, now)
		if err != nil {
			return err
		}
		if !ok {
			return model.MatchTransitionError(cur.Status, model.MatchStatusAccepted)
		}

		req, err := l.GetRequest(cur.RequestID)
		if err != nil {
			return notFound(err, "request", cur.RequestID)
		}
		ok, err = l.MoveRequest(req.ID, model.RequestSourcesFor(model.RequestStatusMatched), model.RequestStatusMatched)
		if err != nil {
			return err
		}
		if !ok {
			return model.RequestTransitionError(req.Status, model.RequestStatusMatched)
		}

		// the shipment travels once; every other offer for it is withdrawn
		others, err := l.MatchesByRequest(req.ID, model.MatchStatusPending)
		if err != nil {
			return err
		}
		for i := range others {
			if others[i].ID == cur.ID {
				continue
			}
			done, err := releaseIn(l, &others[i], model.MatchStatusCancelled, now)
			if err != nil {
				return err
			}
			if done {
				released = append(released, others[i].ID)
			}
		}

		cur.Status = model.MatchStatusAccepted
		cur.RespondedAt = &now
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.forget(ctx, matchID)
	for _, id := range released {
		s.forget(ctx, id)
	}
	log.Printf("[booking] rid=%s match=%s request=%s trip=%s withdrawn=%d stage=accepted", reqctx.RID(ctx), out.ID, out.RequestID, out.TripID, len(released))
	return out, nil
}

func (s *bookingService) Cancel(ctx context.Context, actor Actor, matchID string) (*model.Match, error) {
	m, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, notFound(err, "match", matchID)
	}
	if !m.IsParty(actor.UID) {
		return nil, forbidden("not a party to this match")
	}
	return s.release(ctx, matchID, model.MatchStatusCancelled, nil)
}

// ExpireStale moves pending matches past their response deadline to expired and
// restores their capacity. Index entries that no longer point at a due pending match are
// dropped. An entry that fails is pushed back by SweepRetryDelay, and the run keeps paging
// so failing entries at the head of the index cannot starve the ones behind them.
func (s *bookingService) ExpireStale(ctx context.Context, actor Actor) (*SweepResult, error) {
	if err := actor.require(RoleScheduler); err != nil {
		return nil, err
	}
	now := s.opts.Now()
	res := &SweepResult{Expired: []string{}}
	due := func(m *model.Match) error {
		if m.ExpiresAt == nil || now.Before(*m.ExpiresAt) {
			return errNotDue
		}
		return nil
	}
	seen := map[string]struct{}{}
	limit := s.opts.SweepBatch
	for round := 0; round < sweepRounds; round++ {
		ids, err := s.index.Due(ctx, now, limit)
		if err != nil {
			if round == 0 {
				return nil, err
			}
			log.Printf("[sweep] rid=%s round=%d stage=due err=%v", reqctx.RID(ctx), round, err)
			break
		}
		fresh := 0
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			fresh++
			_, err := s.release(ctx, id, model.MatchStatusExpired, due)
			switch {
			case err == nil:
				res.Expired = append(res.Expired, id)
			case errors.Is(err, errNotDue):
				res.Skipped++
			case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
				res.Skipped++
				s.forget(ctx, id)
			default:
				res.Failed++
				log.Printf("[sweep] rid=%s match=%s stage=expire err=%v", reqctx.RID(ctx), id, err)
				if terr := s.index.Track(ctx, id, now.Add(s.opts.SweepRetryDelay)); terr != nil {
					log.Printf("[sweep] rid=%s match=%s stage=defer err=%v", reqctx.RID(ctx), id, terr)
				}
			}
		}
		// a short page means the index has nothing more that is due
		if fresh == 0 || len(ids) < limit {
			break
		}
		limit = len(seen) + s.opts.SweepBatch
	}
	log.Printf("[sweep] rid=%s due=%d expired=%d skipped=%d failed=%d stage=done", reqctx.RID(ctx), len(seen), len(res.Expired), res.Skipped, res.Failed)
	return res, nil
}

// release is the single path that ends a reservation: decline, expiry and cancellation
// all run through it. guard, when set, may veto the release after the match is re-read.
func (s *bookingService) release(ctx context.Context, matchID string, to model.MatchStatus, guard func(*model.Match) error) (*model.Match, error) {
	now := s.opts.Now()
	var out *model.Match
	err := s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		m, err := l.GetMatch(matchID)
		if err != nil {
			return notFound(err, "match", matchID)
		}
		if !m.Status.CanTransitionTo(to) {
			return model.MatchTransitionError(m.Status, to)
		}
		if guard != nil {
			if err := guard(m); err != nil {
				return err
			}
		}
		wasAccepted := m.Status == model.MatchStatusAccepted
		from := m.Status
		ok, err := releaseIn(l, m, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return model.MatchTransitionError(from, to)
		}
		if wasAccepted {
			if err := reopenRequest(l, m.RequestID); err != nil {
				return err
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.forget(ctx, matchID)
	log.Printf("[booking] rid=%s match=%s trip=%s restored_g=%d status=%s stage=released", reqctx.RID(ctx), out.ID, out.TripID, out.ReservedG, out.Status)
	return out, nil
}

// releaseIn moves m to a terminal status with a CAS on the status it was read in and
// gives its reserved weight back to the trip. It reports false when the CAS missed.
func releaseIn(l repository.Ledger, m *model.Match, to model.MatchStatus, at time.Time) (bool, error) {
	from := m.Status
	ok, err := l.MoveMatch(m.ID, []model.MatchStatus{from}, to, at)
	if err != nil || !ok {
		return false, err
	}
	if from.HoldsReservation() && !to.HoldsReservation() {
		if err := l.RestoreCapacity(m.TripID, m.Bucket, m.ReservedG); err != nil {
			return false, err
		}
	}
	m.Status = to
	m.RespondedAt = &at
	m.ActiveKey = nil
	return true, nil
}

// reopenRequest returns a matched request to the publish state it was in before.
func reopenRequest(l repository.Ledger, requestID string) error {
	req, err := l.GetRequest(requestID)
	if err != nil {
		return notFound(err, "request", requestID)
	}
	if req.Status != model.RequestStatusMatched {
		return nil
	}
	_, err = l.MoveRequest(req.ID, []model.RequestStatus{model.RequestStatusMatched}, req.ReopenStatus())
	return err
}

func (s *bookingService) track(ctx context.Context, m *model.Match) {
	if s.index == nil || m.ExpiresAt == nil {
		return
	}
	if err := s.index.Track(ctx, m.ID, *m.ExpiresAt); err != nil {
		log.Printf("[booking] rid=%s match=%s stage=index_track err=%v", reqctx.RID(ctx), m.ID, err)
	}
}

func (s *bookingService) forget(ctx context.Context, matchID string) {
	if s.index == nil {
		return
	}
	if err := s.index.Forget(ctx, matchID); err != nil {
		log.Printf("[booking] rid=%s match=%s stage=index_forget err=%v", reqctx.RID(ctx), matchID, err)
	}
}

package service

import (
	"context"
	"log"

	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
)

// Proposal is a ranked, unpersisted match together with the trip it points at.
type Proposal struct {
	Match model.Match
	Trip  model.Trip
}

type SearchResult struct {
	Query      matching.MatchQuery
	Proposals  []Proposal
	Rejections []matching.Rejection
}

type MatchService interface {
	FindMatches(ctx context.Context, payload matching.RequestPayload, diagnostics bool) (*SearchResult, error)
	FindForRequest(ctx context.Context, actor Actor, requestID string, diagnostics bool) (*SearchResult, error)
	Get(ctx context.Context, actor Actor, id string) (*model.Match, error)
	ListMine(ctx context.Context, actor Actor) ([]model.Match, error)
}

type matchService struct {
	normalizer *matching.Normalizer
	scorer     *matching.Scorer
	trips      repository.TripRepository
	requests   repository.RequestRepository
	matches    repository.MatchRepository
	ratings    repository.RatingRepository
}

func NewMatchService(normalizer *matching.Normalizer, scorer *matching.Scorer, trips repository.TripRepository, requests repository.RequestRepository, matches repository.MatchRepository, ratings repository.RatingRepository) MatchService {
	return &matchService{normalizer: normalizer, scorer: scorer, trips: trips, requests: requests, matches: matches, ratings: ratings}
}

// FindMatches is read-only: it never reserves capacity or persists the proposals.
func (s *matchService) FindMatches(ctx context.Context, payload matching.RequestPayload, diagnostics bool) (*SearchResult, error) {
	n, err := s.normalizer.Normalize(payload)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, n.Query, "", "", diagnostics)
}

func (s *matchService) FindForRequest(ctx context.Context, actor Actor, requestID string, diagnostics bool) (*SearchResult, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "request", requestID)
	}
	if req.OwnerUID != actor.UID {
		return nil, forbidden("only the request owner can search for it")
	}
	q, err := matching.QueryFromRequest(req)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, q, req.ID, req.OwnerUID, diagnostics)
}

func (s *matchService) search(ctx context.Context, q matching.MatchQuery, requestID, shopperUID string, diagnostics bool) (*SearchResult, error) {
	trips, err := s.trips.FindCandidates(ctx, q.FromCountry, q.ToCountry, q.WindowStart, q.WindowEnd)
	if err != nil {
		return nil, err
	}
	eligible, rejected := matching.Filter(q, trips)
	ratings := s.loadRatings(ctx, eligible)
	ranked := s.scorer.Rank(q, eligible, ratings)

	res := &SearchResult{Query: q, Proposals: make([]Proposal, 0, len(ranked))}
	for _, r := range ranked {
		res.Proposals = append(res.Proposals, Proposal{
			Match: proposedMatch(q, r, requestID, shopperUID),
			Trip:  r.Trip,
		})
	}
	if diagnostics {
		res.Rejections = rejected
	}
	return res, nil
}

// loadRatings falls back to neutral reliability for everyone when the lookup fails.
func (s *matchService) loadRatings(ctx context.Context, cands []matching.Candidate) map[string]model.TravelerRating {
	seen := map[string]struct{}{}
	uids := make([]string, 0, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.Trip.OwnerUID]; ok {
			continue
		}
		seen[c.Trip.OwnerUID] = struct{}{}
		uids = append(uids, c.Trip.OwnerUID)
	}
	ratings, err := s.ratings.GetMany(ctx, uids)
	if err != nil {
		log.Printf("[match] rid=%s stage=ratings_lookup err=%v", reqctx.RID(ctx), err)
		return nil
	}
	return ratings
}

func proposedMatch(q matching.MatchQuery, r matching.Ranked, requestID, shopperUID string) model.Match {
	return model.Match{
		RequestID:         requestID,
		TripID:            r.Trip.ID,
		ShopperUID:        shopperUID,
		TravelerUID:       r.Trip.OwnerUID,
		Score:             r.Score,
		Bucket:            q.RequiredBucket,
		ReservedG:         q.TotalWeightG,
		FitsCarryOn:       r.Fit.FitsCarryOn,
		AvailableCarryOnG: r.Fit.AvailableCarryOnG,
		AvailableCheckedG: r.Fit.AvailableCheckedG,
		Rationale:         r.Rationale,
		Status:            model.MatchStatusProposed,
	}
}

func (s *matchService) Get(ctx context.Context, actor Actor, id string) (*model.Match, error) {
	m, err := s.matches.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "match", id)
	}
	if !m.IsParty(actor.UID) {
		return nil, forbidden("not a party to this match")
	}
	return m, nil
}

func (s *matchService) ListMine(ctx context.Context, actor Actor) ([]model.Match, error) {
	return s.matches.ListByParty(ctx, actor.UID)
}

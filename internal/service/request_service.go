package service

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
)

type RequestService interface {
	Create(ctx context.Context, actor Actor, payload matching.RequestPayload) (*model.ShopperRequest, error)
	Get(ctx context.Context, actor Actor, id string) (*model.ShopperRequest, error)
	ListMine(ctx context.Context, actor Actor) ([]model.ShopperRequest, error)
	Publish(ctx context.Context, actor Actor, id string, mode model.RequestStatus) (*model.ShopperRequest, error)
	Cancel(ctx context.Context, actor Actor, id string) (*model.ShopperRequest, error)
}

type requestService struct {
	normalizer *matching.Normalizer
	requests   repository.RequestRepository
	ledger     repository.LedgerRepository
	index      repository.PendingIndex
	opts       BookingOptions
}

func NewRequestService(normalizer *matching.Normalizer, requests repository.RequestRepository, ledger repository.LedgerRepository, index repository.PendingIndex, opts BookingOptions) RequestService {
	return &requestService{normalizer: normalizer, requests: requests, ledger: ledger, index: index, opts: opts.withDefaults()}
}

// Create stores a fully normalized draft; an invalid payload stores nothing.
func (s *requestService) Create(ctx context.Context, actor Actor, payload matching.RequestPayload) (*model.ShopperRequest, error) {
	if err := actor.require(RoleShopper); err != nil {
		return nil, err
	}
	n, err := s.normalizer.Normalize(payload)
	if err != nil {
		return nil, err
	}
	req := n.Request
	req.ID = uuid.NewString()
	req.OwnerUID = actor.UID
	req.Status = model.RequestStatusDraft
	for i := range req.Items {
		req.Items[i].RequestID = req.ID
	}
	if err := s.requests.Create(ctx, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Get lets travelers read requests that are open for offers; drafts stay private.
func (s *requestService) Get(ctx context.Context, actor Actor, id string) (*model.ShopperRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "request", id)
	}
	if req.OwnerUID == actor.UID {
		return req, nil
	}
	if actor.Role == RoleTraveler && req.Status.Searching() {
		return req, nil
	}
	return nil, forbidden("request is not visible to you")
}

func (s *requestService) ListMine(ctx context.Context, actor Actor) ([]model.ShopperRequest, error) {
	return s.requests.ListByOwner(ctx, actor.UID)
}

func (s *requestService) owned(ctx context.Context, actor Actor, id string) (*model.ShopperRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "request", id)
	}
	if req.OwnerUID != actor.UID {
		return nil, forbidden("only the request owner can change it")
	}
	return req, nil
}

func (s *requestService) Publish(ctx context.Context, actor Actor, id string, mode model.RequestStatus) (*model.ShopperRequest, error) {
	if !mode.Searching() {
		return nil, domainerr.Invalid("mode", "mode must be published or marketplace")
	}
	req, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	// a matched request only reopens when its accepted match is released
	if req.Status == model.RequestStatusMatched || !req.Status.CanTransitionTo(mode) {
		return nil, model.RequestTransitionError(req.Status, mode)
	}
	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		ok, err := l.MoveRequest(id, []model.RequestStatus{req.Status}, mode)
		if err != nil {
			return err
		}
		if !ok {
			return model.RequestTransitionError(req.Status, mode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	req.Status = mode
	req.PublishMode = mode
	return req, nil
}

// Cancel withdraws the request and releases every reservation still held for it.
func (s *requestService) Cancel(ctx context.Context, actor Actor, id string) (*model.ShopperRequest, error) {
	req, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	now := s.opts.Now()
	var released []string
	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		released = released[:0]
		cur, err := l.GetRequest(id)
		if err != nil {
			return notFound(err, "request", id)
		}
		if !cur.Status.CanTransitionTo(model.RequestStatusCancelled) {
			return model.RequestTransitionError(cur.Status, model.RequestStatusCancelled)
		}
		ok, err := l.MoveRequest(id, []model.RequestStatus{cur.Status}, model.RequestStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return model.RequestTransitionError(cur.Status, model.RequestStatusCancelled)
		}
		ms, err := l.MatchesByRequest(id, model.MatchStatusPending, model.MatchStatusAccepted)
		if err != nil {
			return err
		}
		for i := range ms {
			done, err := releaseIn(l, &ms[i], model.MatchStatusCancelled, now)
			if err != nil {
				return err
			}
			if done {
				released = append(released, ms[i].ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, mid := range released {
		if s.index != nil {
			if err := s.index.Forget(ctx, mid); err != nil {
				log.Printf("[request] rid=%s match=%s stage=index_forget err=%v", reqctx.RID(ctx), mid, err)
			}
		}
	}
	log.Printf("[request] rid=%s request=%s released=%d stage=cancelled", reqctx.RID(ctx), id, len(released))
	req.Status = model.RequestStatusCancelled
	return req, nil
}

package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the database. Atomic holds the store lock for
// the whole callback and restores a snapshot when it fails, which gives the same
// all-or-nothing behaviour as a transaction.
type memStore struct {
	mu        sync.Mutex
	trips     map[string]model.Trip
	requests  map[string]model.ShopperRequest
	matches   map[string]model.Match
	ratings   map[string]model.TravelerRating
	seq       int
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{
		trips:    map[string]model.Trip{},
		requests: map[string]model.ShopperRequest{},
		matches:  map[string]model.Match{},
		ratings:  map[string]model.TravelerRating{},
	}
}

func (s *memStore) SetDB(*gorm.DB) {}

func (s *memStore) Atomic(_ context.Context, fn func(l repository.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trips, requests, matches := copyMap(s.trips), copyMap(s.requests), copyMap(s.matches)
	if err := fn(memLedger{s}); err != nil {
		s.trips, s.requests, s.matches = trips, requests, matches
		return err
	}
	return nil
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) trip(id string) model.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips[id]
}

func (s *memStore) match(id string) model.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[id]
}

func (s *memStore) request(id string) model.ShopperRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

// reservedFor sums the weight held by live matches on a trip bucket.
func (s *memStore) reservedFor(tripID string, b model.Bucket) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, m := range s.matches {
		if m.TripID == tripID && m.Bucket == b && m.Status.HoldsReservation() {
			sum += m.ReservedG
		}
	}
	return sum
}

// tripRepo

type memTrips struct{ *memStore }

func (r memTrips) Create(_ context.Context, t *model.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
	r.trips[t.ID] = *t
	return nil
}

func (r memTrips) FindByID(_ context.Context, id string) (*model.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r memTrips) ListByOwner(_ context.Context, uid string) ([]model.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Trip
	for _, t := range r.trips {
		if t.OwnerUID == uid {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTrips) FindCandidates(_ context.Context, from, to, start, end string) ([]model.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Trip
	for _, t := range r.trips {
		if t.OriginCountry == from && t.DestinationCountry == to && t.Status.Discoverable() &&
			t.ArrivalDate >= start && t.ArrivalDate <= end {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTrips) SetTicket(_ context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.TicketPhotoRef = &ref
	r.trips[id] = t
	return nil
}

// requestRepo

type memRequests struct{ *memStore }

func (r memRequests) Create(_ context.Context, req *model.ShopperRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	req.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
	r.requests[req.ID] = *req
	return nil
}

func (r memRequests) FindByID(_ context.Context, id string) (*model.ShopperRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &req, nil
}

func (r memRequests) ListByOwner(_ context.Context, uid string) ([]model.ShopperRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ShopperRequest
	for _, req := range r.requests {
		if req.OwnerUID == uid {
			out = append(out, req)
		}
	}
	return out, nil
}

// matchRepo

type memMatches struct{ *memStore }

func (r memMatches) FindByID(_ context.Context, id string) (*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (r memMatches) ListByParty(_ context.Context, uid string) ([]model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Match
	for _, m := range r.matches {
		if m.IsParty(uid) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMatches) ListPendingDue(_ context.Context, now time.Time, limit int) ([]model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Match
	for _, m := range r.matches {
		if m.Status == model.MatchStatusPending && m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ratingRepo

type memRatings struct{ *memStore }

func (r memRatings) Upsert(_ context.Context, tr *model.TravelerRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings[tr.OwnerUID] = *tr
	return nil
}

func (r memRatings) GetMany(_ context.Context, uids []string) (map[string]model.TravelerRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]model.TravelerRating{}
	for _, uid := range uids {
		if tr, ok := r.ratings[uid]; ok {
			out[uid] = tr
		}
	}
	return out, nil
}

// ledger; the store lock is already held by Atomic

type memLedger struct{ s *memStore }

func (l memLedger) GetTrip(id string) (*model.Trip, error) {
	t, ok := l.s.trips[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (l memLedger) GetMatch(id string) (*model.Match, error) {
	m, ok := l.s.matches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (l memLedger) GetRequest(id string) (*model.ShopperRequest, error) {
	r, ok := l.s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

func (l memLedger) filterMatches(keep func(model.Match) bool, statuses []model.MatchStatus) []model.Match {
	var out []model.Match
	for _, m := range l.s.matches {
		if !keep(m) {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, m.Status) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func hasStatus[S comparable](set []S, v S) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (l memLedger) MatchesByTrip(tripID string, statuses ...model.MatchStatus) ([]model.Match, error) {
	return l.filterMatches(func(m model.Match) bool { return m.TripID == tripID }, statuses), nil
}

func (l memLedger) MatchesByRequest(requestID string, statuses ...model.MatchStatus) ([]model.Match, error) {
	return l.filterMatches(func(m model.Match) bool { return m.RequestID == requestID }, statuses), nil
}

func (l memLedger) DeductCapacity(tripID string, b model.Bucket, grams, version int64) error {
	if l.s.conflicts > 0 {
		l.s.conflicts--
		if t, ok := l.s.trips[tripID]; ok {
			t.Version++
			l.s.trips[tripID] = t
		}
		return repository.ErrVersionConflict
	}
	t, ok := l.s.trips[tripID]
	if !ok || t.Version != version || t.Status != model.TripStatusActive || t.Available(b) < grams {
		return repository.ErrVersionConflict
	}
	if b == model.BucketCarryOn {
		t.AvailableCarryOnG -= grams
	} else {
		t.AvailableCheckedG -= grams
	}
	t.Version++
	l.s.trips[tripID] = t
	return nil
}

func (l memLedger) RestoreCapacity(tripID string, b model.Bucket, grams int64) error {
	t := l.s.trips[tripID]
	if t.Available(b)+grams > t.Total(b) {
		return io.ErrShortWrite
	}
	if b == model.BucketCarryOn {
		t.AvailableCarryOnG += grams
	} else {
		t.AvailableCheckedG += grams
	}
	t.Version++
	l.s.trips[tripID] = t
	return nil
}

func (l memLedger) InsertMatch(m *model.Match) error {
	if m.ActiveKey != nil {
		for _, other := range l.s.matches {
			if other.ActiveKey != nil && *other.ActiveKey == *m.ActiveKey {
				return repository.ErrDuplicateActive
			}
		}
	}
	l.s.seq++
	m.CreatedAt = time.Unix(int64(l.s.seq), 0).UTC()
	l.s.matches[m.ID] = *m
	return nil
}

func (l memLedger) MoveMatch(id string, from []model.MatchStatus, to model.MatchStatus, at time.Time) (bool, error) {
	m, ok := l.s.matches[id]
	if !ok || !hasStatus(from, m.Status) {
		return false, nil
	}
	m.Status = to
	m.RespondedAt = &at
	if !to.HoldsReservation() {
		m.ActiveKey = nil
	}
	l.s.matches[id] = m
	return true, nil
}

func (l memLedger) MoveTrip(id string, from []model.TripStatus, to model.TripStatus) (bool, error) {
	t, ok := l.s.trips[id]
	if !ok || !hasStatus(from, t.Status) {
		return false, nil
	}
	t.Status = to
	t.Version++
	l.s.trips[id] = t
	return true, nil
}

func (l memLedger) MoveRequest(id string, from []model.RequestStatus, to model.RequestStatus) (bool, error) {
	r, ok := l.s.requests[id]
	if !ok || !hasStatus(from, r.Status) {
		return false, nil
	}
	r.Status = to
	r.Version++
	if to.Searching() {
		r.PublishMode = to
	}
	l.s.requests[id] = r
	return true, nil
}

func (l memLedger) TouchRequest(id string, version int64) error {
	r, ok := l.s.requests[id]
	if !ok || r.Version != version || !r.Status.Searching() {
		return repository.ErrVersionConflict
	}
	r.Version++
	l.s.requests[id] = r
	return nil
}

func (l memLedger) ReviseTrip(t *model.Trip, version int64) error {
	cur, ok := l.s.trips[t.ID]
	if !ok || cur.Version != version || !cur.Status.Revisable() {
		return repository.ErrVersionConflict
	}
	t.Version = version + 1
	l.s.trips[t.ID] = *t
	return nil
}

// memIndex is a PendingIndex backed by a map.
type memIndex struct {
	mu  sync.Mutex
	due map[string]time.Time
}

func newMemIndex() *memIndex { return &memIndex{due: map[string]time.Time{}} }

func (x *memIndex) Track(_ context.Context, id string, at time.Time) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.due[id] = at
	return nil
}

func (x *memIndex) Forget(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.due, id)
	return nil
}

func (x *memIndex) Due(_ context.Context, now time.Time, limit int) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var ids []string
	for id, at := range x.due {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return x.due[ids[i]].Before(x.due[ids[j]]) })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (x *memIndex) has(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.due[id]
	return ok
}

// memUploader records uploads instead of sending them anywhere.
type memUploader struct {
	objects map[string][]byte
}

func (u *memUploader) Upload(_ context.Context, objectPath, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[objectPath] = b
	return "https://files.test/" + objectPath, nil
}

// frozenRequests answers reads from a snapshot taken before a concurrent writer
// committed, the way a request read outside the booking transaction can be stale.
type frozenRequests struct {
	memRequests
	snap map[string]model.ShopperRequest
}

func (r frozenRequests) FindByID(_ context.Context, id string) (*model.ShopperRequest, error) {
	req, ok := r.snap[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &req, nil
}

// trackless ignores Track the way the database-backed index does.
type trackless struct{ *memIndex }

func (trackless) Track(context.Context, string, time.Time) error { return nil }

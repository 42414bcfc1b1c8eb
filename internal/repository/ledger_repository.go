package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the set of reads and compare-and-set writes available inside one ledger
// transaction. Every write reports whether its guard matched instead of overwriting.
type Ledger interface {
	GetTrip(id string) (*model.Trip, error)
	GetMatch(id string) (*model.Match, error)
	GetRequest(id string) (*model.ShopperRequest, error)
	MatchesByTrip(tripID string, statuses ...model.MatchStatus) ([]model.Match, error)
	MatchesByRequest(requestID string, statuses ...model.MatchStatus) ([]model.Match, error)

	// DeductCapacity subtracts grams from the bucket only if the trip is still active, at
	// expectedVersion, and has enough left. Otherwise it returns ErrVersionConflict.
	DeductCapacity(tripID string, bucket model.Bucket, grams, expectedVersion int64) error
	// RestoreCapacity gives grams back to the bucket, never above the declared total.
	RestoreCapacity(tripID string, bucket model.Bucket, grams int64) error
	InsertMatch(m *model.Match) error
	MoveMatch(id string, from []model.MatchStatus, to model.MatchStatus, at time.Time) (bool, error)
	MoveTrip(id string, from []model.TripStatus, to model.TripStatus) (bool, error)
	MoveRequest(id string, from []model.RequestStatus, to model.RequestStatus) (bool, error)
	// TouchRequest bumps the request version only if it is still searching and at
	// expectedVersion. Otherwise it returns ErrVersionConflict.
	TouchRequest(id string, expectedVersion int64) error
	ReviseTrip(t *model.Trip, expectedVersion int64) error
}

type LedgerRepository interface {
	// Atomic runs fn in one database transaction; any error rolls back every write.
	Atomic(ctx context.Context, fn func(l Ledger) error) error
	SetDB(db *gorm.DB)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Atomic(ctx context.Context, fn func(l Ledger) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedger{tx: tx})
	})
}

func (r *ledgerRepository) SetDB(db *gorm.DB) {
	r.db = db
}

type gormLedger struct {
	tx *gorm.DB
}

func availableColumn(b model.Bucket) string {
	if b == model.BucketCarryOn {
		return "available_carry_on_g"
	}
	return "available_checked_g"
}

func totalColumn(b model.Bucket) string {
	if b == model.BucketCarryOn {
		return "total_carry_on_g"
	}
	return "total_checked_g"
}

func (l *gormLedger) GetTrip(id string) (*model.Trip, error) {
	var t model.Trip
	if err := l.tx.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (l *gormLedger) GetMatch(id string) (*model.Match, error) {
	var m model.Match
	if err := l.tx.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *gormLedger) GetRequest(id string) (*model.ShopperRequest, error) {
	var req model.ShopperRequest
	if err := l.tx.Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// MatchesByTrip and MatchesByRequest lock the rows they return. A locking read sees
// matches committed after the transaction's snapshot, so a cascade cannot miss a booking
// that committed while it waited on the parent row.
func (l *gormLedger) MatchesByTrip(tripID string, statuses ...model.MatchStatus) ([]model.Match, error) {
	var list []model.Match
	q := l.tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("trip_id = ?", tripID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (l *gormLedger) MatchesByRequest(requestID string, statuses ...model.MatchStatus) ([]model.Match, error) {
	var list []model.Match
	q := l.tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("request_id = ?", requestID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (l *gormLedger) DeductCapacity(tripID string, bucket model.Bucket, grams, expectedVersion int64) error {
	col := availableColumn(bucket)
	res := l.tx.Model(&model.Trip{}).
		Where("id = ? AND version = ? AND status = ?", tripID, expectedVersion, model.TripStatusActive).
		Where(col+" >= ?", grams).
		Updates(map[string]interface{}{
			col:       gorm.Expr(col+" - ?", grams),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (l *gormLedger) RestoreCapacity(tripID string, bucket model.Bucket, grams int64) error {
	col := availableColumn(bucket)
	res := l.tx.Model(&model.Trip{}).
		Where("id = ?", tripID).
		Where(col+" + ? <= "+totalColumn(bucket), grams).
		Updates(map[string]interface{}{
			col:       gorm.Expr(col+" + ?", grams),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("restore %d g to trip %s: would exceed declared capacity", grams, tripID)
	}
	return nil
}

func (l *gormLedger) InsertMatch(m *model.Match) error {
	if err := l.tx.Create(m).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateActive
		}
		return err
	}
	return nil
}

// MoveMatch clears active_key when the target status no longer holds a reservation so the
// pair can be booked again later.
func (l *gormLedger) MoveMatch(id string, from []model.MatchStatus, to model.MatchStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       to,
		"responded_at": at,
	}
	if !to.HoldsReservation() {
		updates["active_key"] = nil
	}
	res := l.tx.Model(&model.Match{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *gormLedger) MoveTrip(id string, from []model.TripStatus, to model.TripStatus) (bool, error) {
	res := l.tx.Model(&model.Trip{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MoveRequest also records the publish mode when the request enters a searching state.
func (l *gormLedger) MoveRequest(id string, from []model.RequestStatus, to model.RequestStatus) (bool, error) {
	updates := map[string]interface{}{
		"status":  to,
		"version": gorm.Expr("version + 1"),
	}
	if to.Searching() {
		updates["publish_mode"] = to
	}
	res := l.tx.Model(&model.ShopperRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *gormLedger) TouchRequest(id string, expectedVersion int64) error {
	res := l.tx.Model(&model.ShopperRequest{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Where("status IN ?", []model.RequestStatus{model.RequestStatusPublished, model.RequestStatusMarketplace}).
		Update("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (l *gormLedger) ReviseTrip(t *model.Trip, expectedVersion int64) error {
	res := l.tx.Model(&model.Trip{}).
		Where("id = ? AND version = ?", t.ID, expectedVersion).
		Where("status IN ?", []model.TripStatus{model.TripStatusPending, model.TripStatusActive}).
		Updates(map[string]interface{}{
			"total_carry_on_g":            t.TotalCarryOnG,
			"available_carry_on_g":        t.AvailableCarryOnG,
			"total_checked_g":             t.TotalCheckedG,
			"available_checked_g":         t.AvailableCheckedG,
			"can_carry_fragile":           t.CanCarryFragile,
			"can_handle_special_delivery": t.CanHandleSpecialDelivery,
			"special_categories":          jsonList(t.SpecialCategories),
			"version":                     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	return nil
}

// jsonList encodes the same way the json serializer on the model does; map updates bypass it.
func jsonList(v []string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

package repository

import (
	"context"

	"github.com/shinyyama/tripmatch-backend/internal/model"
	"gorm.io/gorm"
)

type TripRepository interface {
	Create(ctx context.Context, t *model.Trip) error
	FindByID(ctx context.Context, id string) (*model.Trip, error)
	ListByOwner(ctx context.Context, ownerUID string) ([]model.Trip, error)
	FindCandidates(ctx context.Context, from, to, windowStart, windowEnd string) ([]model.Trip, error)
	SetTicket(ctx context.Context, id, ref string) error
	SetDB(db *gorm.DB)
}

type tripRepository struct {
	db *gorm.DB
}

func NewTripRepository(db *gorm.DB) TripRepository {
	return &tripRepository{db: db}
}

func (r *tripRepository) Create(ctx context.Context, t *model.Trip) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *tripRepository) FindByID(ctx context.Context, id string) (*model.Trip, error) {
	var t model.Trip
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tripRepository) ListByOwner(ctx context.Context, ownerUID string) ([]model.Trip, error) {
	var list []model.Trip
	if err := r.db.WithContext(ctx).
		Where("owner_uid = ?", ownerUID).
		Order("departure_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// FindCandidates returns discoverable trips on the route whose local arrival date falls in
// the inclusive window. Capacity is not filtered here.
func (r *tripRepository) FindCandidates(ctx context.Context, from, to, windowStart, windowEnd string) ([]model.Trip, error) {
	var list []model.Trip
	if err := r.db.WithContext(ctx).
		Where("origin_country = ? AND destination_country = ?", from, to).
		Where("arrival_date BETWEEN ? AND ?", windowStart, windowEnd).
		Where("status IN ?", []model.TripStatus{model.TripStatusPending, model.TripStatusActive}).
		Order("arrival_date ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *tripRepository) SetTicket(ctx context.Context, id, ref string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ?", id).
		Update("ticket_photo_ref", ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *tripRepository) SetDB(db *gorm.DB) {
	r.db = db
}

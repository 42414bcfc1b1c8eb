package repository

import (
	"context"
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/model"
	"gorm.io/gorm"
)

type MatchRepository interface {
	FindByID(ctx context.Context, id string) (*model.Match, error)
	ListByParty(ctx context.Context, uid string) ([]model.Match, error)
	ListPendingDue(ctx context.Context, now time.Time, limit int) ([]model.Match, error)
	SetDB(db *gorm.DB)
}

type matchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) FindByID(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepository) ListByParty(ctx context.Context, uid string) ([]model.Match, error) {
	var list []model.Match
	if err := r.db.WithContext(ctx).
		Where("shopper_uid = ? OR traveler_uid = ?", uid, uid).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListPendingDue returns pending matches whose response deadline has passed, oldest first.
func (r *matchRepository) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]model.Match, error) {
	var list []model.Match
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.MatchStatusPending, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *matchRepository) SetDB(db *gorm.DB) {
	r.db = db
}

package repository

import (
	"context"

	"github.com/shinyyama/tripmatch-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RatingRepository interface {
	Upsert(ctx context.Context, rating *model.TravelerRating) error
	GetMany(ctx context.Context, uids []string) (map[string]model.TravelerRating, error)
	SetDB(db *gorm.DB)
}

type ratingRepository struct {
	db *gorm.DB
}

func NewRatingRepository(db *gorm.DB) RatingRepository {
	return &ratingRepository{db: db}
}

func (r *ratingRepository) Upsert(ctx context.Context, rating *model.TravelerRating) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_uid"}},
			DoUpdates: clause.AssignmentColumns([]string{"average", "count", "updated_at"}),
		}).
		Create(rating).Error
}

// GetMany loads ratings for the given travelers; travelers without history are absent from the map.
func (r *ratingRepository) GetMany(ctx context.Context, uids []string) (map[string]model.TravelerRating, error) {
	out := make(map[string]model.TravelerRating, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	var list []model.TravelerRating
	if err := r.db.WithContext(ctx).
		Where("owner_uid IN ?", uids).
		Find(&list).Error; err != nil {
		return nil, err
	}
	for _, tr := range list {
		out[tr.OwnerUID] = tr
	}
	return out, nil
}

func (r *ratingRepository) SetDB(db *gorm.DB) {
	r.db = db
}

package repository

import (
	"context"

	"github.com/shinyyama/tripmatch-backend/internal/model"
	"gorm.io/gorm"
)

type RequestRepository interface {
	Create(ctx context.Context, r *model.ShopperRequest) error
	FindByID(ctx context.Context, id string) (*model.ShopperRequest, error)
	ListByOwner(ctx context.Context, ownerUID string) ([]model.ShopperRequest, error)
	SetDB(db *gorm.DB)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

// Create inserts the request together with its bag items.
func (r *requestRepository) Create(ctx context.Context, req *model.ShopperRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id string) (*model.ShopperRequest, error) {
	var req model.ShopperRequest
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ListByOwner(ctx context.Context, ownerUID string) ([]model.ShopperRequest, error) {
	var list []model.ShopperRequest
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("owner_uid = ?", ownerUID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *requestRepository) SetDB(db *gorm.DB) {
	r.db = db
}

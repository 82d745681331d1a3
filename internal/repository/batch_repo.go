package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trade-confirmation-backend/internal/models"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *models.ReconciliationBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// Save persists the batch's counters and final status.
func (r *BatchRepository) Save(ctx context.Context, batch *models.ReconciliationBatch) error {
	return r.db.WithContext(ctx).Save(batch).Error
}

func (r *BatchRepository) Get(ctx context.Context, id uuid.UUID) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "batch "+id.String())
	}
	return &batch, nil
}

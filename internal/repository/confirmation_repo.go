package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trade-confirmation-backend/internal/models"
)

type ConfirmationRepository struct {
	db *gorm.DB
}

func NewConfirmationRepository(db *gorm.DB) *ConfirmationRepository {
	return &ConfirmationRepository{db: db}
}

func (r *ConfirmationRepository) WithTx(tx *gorm.DB) *ConfirmationRepository {
	return &ConfirmationRepository{db: tx}
}

func (r *ConfirmationRepository) Create(ctx context.Context, confirmations []*models.Confirmation) error {
	if len(confirmations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&confirmations).Error
}

// GetByID loads one of the tenant's confirmations. Another tenant's id reads
// as not found.
func (r *ConfirmationRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Confirmation, error) {
	var c models.Confirmation
	if err := r.db.WithContext(ctx).First(&c, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		return nil, notFound(err, "confirmation "+id.String())
	}
	return &c, nil
}

// ListUnmatched returns the tenant's unmatched confirmations, oldest first.
func (r *ConfirmationRepository) ListUnmatched(ctx context.Context, tenantID uuid.UUID) ([]models.Confirmation, error) {
	var confirmations []models.Confirmation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.StatusUnmatched).
		Order("created_at ASC, id ASC").
		Find(&confirmations).Error
	return confirmations, err
}

// Claim moves an unmatched confirmation to status if its version is
// unchanged.
func (r *ConfirmationRepository) Claim(ctx context.Context, id uuid.UUID, version int, status string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Confirmation{}).
		Where("id = ? AND version = ? AND status = ?", id, version, models.StatusUnmatched).
		Updates(map[string]interface{}{
			"status":  status,
			"version": gorm.Expr("version + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

// UpdateStatus sets a confirmation's status when the stored status still
// equals from. It reports false if the row changed underneath.
func (r *ConfirmationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Confirmation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *ConfirmationRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Confirmation{}).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Count(&n).Error
	return n, err
}

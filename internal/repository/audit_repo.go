package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trade-confirmation-backend/internal/models"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Record(ctx context.Context, entry *models.StatusAuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ForConfirmation returns the audit trail of one confirmation, oldest first.
func (r *AuditRepository) ForConfirmation(ctx context.Context, confirmationID uuid.UUID) ([]models.StatusAuditLog, error) {
	var entries []models.StatusAuditLog
	err := r.db.WithContext(ctx).
		Where("confirmation_id = ?", confirmationID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

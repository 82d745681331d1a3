package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trade-confirmation-backend/internal/models"
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// ActiveRules returns the tenant's active rules, highest precedence
// (lowest priority value) first.
func (r *SettlementRepository) ActiveRules(ctx context.Context, tenantID uuid.UUID) ([]models.SettlementRule, error) {
	var rules []models.SettlementRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("priority ASC, created_at ASC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *SettlementRepository) CreateRule(ctx context.Context, rule *models.SettlementRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *SettlementRepository) CreateBankAccount(ctx context.Context, account *models.BankAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetBankAccount loads an account owned by the tenant.
func (r *SettlementRepository) GetBankAccount(ctx context.Context, tenantID, id uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&account, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "bank account "+id.String())
	}
	return &account, nil
}

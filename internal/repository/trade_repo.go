package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-confirmation-backend/internal/models"
)

type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// WithTx returns a repository bound to an open transaction.
func (r *TradeRepository) WithTx(tx *gorm.DB) *TradeRepository {
	return &TradeRepository{db: tx}
}

// Create inserts trades, ignoring trade numbers the tenant already uploaded.
// It returns the number of rows actually inserted.
func (r *TradeRepository) Create(ctx context.Context, trades []*models.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&trades)
	return res.RowsAffected, res.Error
}

func (r *TradeRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Trade, error) {
	var trade models.Trade
	if err := r.db.WithContext(ctx).First(&trade, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		return nil, notFound(err, "trade "+id.String())
	}
	return &trade, nil
}

// ListUnmatched returns the tenant's unmatched trades, oldest upload first.
func (r *TradeRepository) ListUnmatched(ctx context.Context, tenantID uuid.UUID) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.StatusUnmatched).
		Order("created_at ASC, id ASC").
		Find(&trades).Error
	return trades, err
}

// Claim moves an unmatched trade to status if its version is unchanged.
// It reports false when another writer got there first.
func (r *TradeRepository) Claim(ctx context.Context, id uuid.UUID, version int, status string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ? AND version = ? AND status = ?", id, version, models.StatusUnmatched).
		Updates(map[string]interface{}{
			"status":  status,
			"version": gorm.Expr("version + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *TradeRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Count(&n).Error
	return n, err
}

// UpdateStatus sets a trade's status when the stored status still equals
// from.
func (r *TradeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trade-confirmation-backend/internal/models"
)

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

func (r *MatchRepository) Create(ctx context.Context, m *models.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Get loads a match owned by the tenant.
func (r *MatchRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Match, error) {
	var m models.Match
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "match "+id.String())
	}
	return &m, nil
}

// List pages through a tenant's matches ordered by id. The returned cursor
// is empty on the last page.
func (r *MatchRepository) List(ctx context.Context, tenantID uuid.UUID, status, cursor string, limit int) ([]models.Match, string, error) {
	var matches []models.Match
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if err := query.Find(&matches).Error; err != nil {
		return nil, "", err
	}

	var next string
	if len(matches) > limit {
		matches = matches[:limit]
		next = matches[limit-1].ID.String()
	}
	return matches, next, nil
}

type MatchStats struct {
	Total           int64   `json:"total"`
	ConfirmedCount  int64   `json:"confirmation_ok_count"`
	DiferenciaCount int64   `json:"diferencia_count"`
	AvgConfidence   float64 `json:"avg_confidence"`
}

type statRow struct {
	Status string
	Count  int64
	Avg    float64
}

func (r *MatchRepository) Stats(ctx context.Context, tenantID uuid.UUID) (MatchStats, error) {
	var stats MatchStats
	var rows []statRow

	err := r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("tenant_id = ?", tenantID).
		Select("status, COUNT(*) as count, COALESCE(AVG(confidence_score),0) as avg").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	var weighted float64
	for _, row := range rows {
		stats.Total += row.Count
		weighted += row.Avg * float64(row.Count)
		switch row.Status {
		case models.StatusConfirmationOK:
			stats.ConfirmedCount = row.Count
		case models.StatusDiferencia:
			stats.DiferenciaCount = row.Count
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = weighted / float64(stats.Total)
	}
	return stats, nil
}

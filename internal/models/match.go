package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Discrepancy is a field whose trade and confirmation values differ beyond
// the declared tolerance.
type Discrepancy struct {
	Field             string `json:"field"`
	TradeValue        string `json:"trade_value"`
	ConfirmationValue string `json:"confirmation_value"`
}

// Match links one trade to one confirmation. The unique indexes keep each
// side in at most one match.
type Match struct {
	ID              uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        uuid.UUID                        `gorm:"type:uuid;index" json:"tenant_id"`
	BatchID         *uuid.UUID                       `gorm:"type:uuid;index" json:"batch_id,omitempty"`
	TradeID         uuid.UUID                        `gorm:"type:uuid;uniqueIndex" json:"trade_id"`
	ConfirmationID  uuid.UUID                        `gorm:"type:uuid;uniqueIndex" json:"confirmation_id"`
	ConfidenceScore int                              `json:"confidence_score"`
	MatchReasons    datatypes.JSONSlice[string]      `json:"match_reasons"`
	Discrepancies   datatypes.JSONSlice[Discrepancy] `json:"discrepancies"`
	Status          string                           `gorm:"index" json:"status"`
	CreatedAt       time.Time                        `json:"created_at"`
}

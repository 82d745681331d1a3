package models

import (
	"time"

	"github.com/google/uuid"
)

// Confirmation is a bank confirmation extracted upstream from an email.
// TradeNumber holds the client reference when the bank quoted one.
type Confirmation struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	TradeFields
	EmailSender          string    `json:"email_sender"`
	EmailSubject         string    `json:"email_subject"`
	BankTradeNumber      string    `gorm:"index" json:"bank_trade_number"`
	ExtractionConfidence float64   `json:"extraction_confidence"`
	Status               string    `gorm:"index" json:"status"`
	Version              int       `gorm:"not null" json:"version"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

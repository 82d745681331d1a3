package models

import (
	"time"

	"github.com/google/uuid"
)

// WildcardCounterparty matches any counterparty in a settlement rule.
const WildcardCounterparty = "*"

type SettlementRule struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	Priority      int       `gorm:"index" json:"priority"`
	Active        bool      `json:"active"`
	Counterparty  string    `json:"counterparty"`
	Product       string    `json:"product"`
	Direction     string    `json:"direction"`
	Currency      string    `gorm:"size:3" json:"currency"`
	BankAccountID uuid.UUID `gorm:"type:uuid" json:"bank_account_id"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type BankAccount struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	AccountHolder string    `json:"account_holder"`
	Currency      string    `gorm:"size:3" json:"currency"`
	SwiftCode     string    `json:"swift_code"`
	CreatedAt     time.Time `json:"created_at"`
}

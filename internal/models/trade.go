package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ProductSpot    = "Spot"
	ProductForward = "Forward"
	ProductSwap    = "Swap"

	DirectionBuy  = "Buy"
	DirectionSell = "Sell"
)

// TradeFields is the economic field set shared by a client trade and the
// bank confirmation reconciled against it.
type TradeFields struct {
	TradeNumber        string          `gorm:"index" json:"trade_number"`
	CounterpartyName   string          `gorm:"index" json:"counterparty_name"`
	ProductType        string          `json:"product_type"`
	Direction          string          `json:"direction"`
	Currency1          string          `gorm:"size:3" json:"currency1"`
	Quantity1          decimal.Decimal `gorm:"type:decimal(24,8)" json:"quantity1"`
	Currency2          string          `gorm:"size:3" json:"currency2"`
	Price              decimal.Decimal `gorm:"type:decimal(24,10)" json:"price"`
	TradeDate          *time.Time      `gorm:"type:date" json:"trade_date"`
	ValueDate          *time.Time      `gorm:"type:date" json:"value_date"`
	MaturityDate       *time.Time      `gorm:"type:date" json:"maturity_date,omitempty"`
	SettlementType     string          `json:"settlement_type"`
	SettlementCurrency string          `gorm:"size:3" json:"settlement_currency"`
	PaymentMethod      string          `json:"payment_method"`
}

// Trade is a client-reported FX operation. CreatedAt doubles as the upload
// time used for tie-breaking during reconciliation.
type Trade struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	TradeFields
	Status    string    `gorm:"index" json:"status"`
	Version   int       `gorm:"not null" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

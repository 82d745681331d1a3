// Package testutil holds database and fixture helpers shared by tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trade-confirmation-backend/internal/config"
	"trade-confirmation-backend/internal/models"
)

// NewDB opens a migrated in-memory SQLite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

func Date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// TradeFields returns a complete USD/CLP spot purchase from "Bank A".
func TradeFields(number string) models.TradeFields {
	return models.TradeFields{
		TradeNumber:        number,
		CounterpartyName:   "Bank A",
		ProductType:        models.ProductSpot,
		Direction:          models.DirectionBuy,
		Currency1:          "USD",
		Quantity1:          decimal.RequireFromString("100000"),
		Currency2:          "CLP",
		Price:              decimal.RequireFromString("950.00"),
		TradeDate:          Date("2025-03-10"),
		ValueDate:          Date("2025-03-12"),
		SettlementType:     "Delivery",
		SettlementCurrency: "CLP",
		PaymentMethod:      "Wire",
	}
}

func CreateTenant(t testing.TB, db *gorm.DB, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{ID: uuid.New(), Name: name}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// CreateTrade stores an unmatched trade. uploaded orders trades by upload
// time.
func CreateTrade(t testing.TB, db *gorm.DB, tenantID uuid.UUID, fields models.TradeFields, uploaded time.Time) *models.Trade {
	t.Helper()
	trade := &models.Trade{
		ID:          uuid.New(),
		TenantID:    tenantID,
		TradeFields: fields,
		Status:      models.StatusUnmatched,
		CreatedAt:   uploaded,
	}
	require.NoError(t, db.WithContext(context.Background()).Create(trade).Error)
	return trade
}

func CreateConfirmation(t testing.TB, db *gorm.DB, tenantID uuid.UUID, fields models.TradeFields, sender string) *models.Confirmation {
	t.Helper()
	c := &models.Confirmation{
		ID:                   uuid.New(),
		TenantID:             tenantID,
		TradeFields:          fields,
		EmailSender:          sender,
		EmailSubject:         "Trade confirmation",
		BankTradeNumber:      "BK-" + fields.TradeNumber,
		ExtractionConfidence: 0.97,
		Status:               models.StatusUnmatched,
		CreatedAt:            time.Now(),
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

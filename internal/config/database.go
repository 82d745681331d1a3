package config

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trade-confirmation-backend/internal/models"
)

// InitDB opens the configured database.
func InitDB(cfg *Config, logger gormlogger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "reconciliation.db"
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dialector = sqlite.Open(dsn + sep + "_journal_mode=WAL&_busy_timeout=5000")
	default:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres")
		}
		dialector = postgres.Open(cfg.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.BankAccount{},
		&models.SettlementRule{},
		&models.Trade{},
		&models.Confirmation{},
		&models.Match{},
		&models.ReconciliationBatch{},
		&models.StatusAuditLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// Trade numbers are unique per tenant; the shared field set cannot carry
	// a table-specific composite tag.
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_tenant_trade_number ON trades (tenant_id, trade_number)",
	).Error
}

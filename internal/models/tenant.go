package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the client organisation owning trades, rules and accounts.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

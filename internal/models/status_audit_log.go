package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionSetStatus = "set_status"
	AuditActionUndo      = "undo"
)

type StatusAuditLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConfirmationID uuid.UUID `gorm:"type:uuid;index" json:"confirmation_id"`
	Action         string    `json:"action"`
	FromStatus     string    `json:"from_status"`
	ToStatus       string    `json:"to_status"`
	PerformedBy    string    `json:"performed_by"`
	CreatedAt      time.Time `json:"created_at"`
}

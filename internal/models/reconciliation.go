package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// SkippedRecord is a trade or confirmation left out of a batch because it
// failed validation.
type SkippedRecord struct {
	Kind   string    `json:"kind"`
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

// FailedPair is a selected pair whose commit failed for a reason other than
// losing it to another writer. Both records stay unmatched.
type FailedPair struct {
	TradeID        uuid.UUID `json:"trade_id"`
	ConfirmationID uuid.UUID `json:"confirmation_id"`
	Reason         string    `json:"reason"`
}

type ReconciliationBatch struct {
	ID                              uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID                        uuid.UUID                          `gorm:"type:uuid;index" json:"tenant_id"`
	Trigger                         string                             `json:"trigger"`
	Status                          string                             `gorm:"index" json:"status"`
	TradesConsidered                int                                `json:"trades_considered"`
	ConfirmationsConsidered         int                                `json:"confirmations_considered"`
	CandidatePairs                  int                                `json:"candidate_pairs"`
	MatchesCreated                  int                                `json:"matches_created"`
	TradesRemainingUnmatched        int                                `json:"trades_remaining_unmatched"`
	ConfirmationsRemainingUnmatched int                                `json:"confirmations_remaining_unmatched"`
	Conflicts                       int                                `json:"conflicts"`
	Skipped                         datatypes.JSONSlice[SkippedRecord] `json:"skipped"`
	Failed                          datatypes.JSONSlice[FailedPair]    `json:"failed"`
	Error                           string                             `json:"error,omitempty"`
	StartedAt                       time.Time                          `json:"started_at"`
	CompletedAt                     *time.Time                         `json:"completed_at,omitempty"`
	CreatedAt                       time.Time                          `json:"created_at"`
}

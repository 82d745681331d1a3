// Package status drives the confirmation status lifecycle: manual changes,
// one-level undo and mailback drafts.
package status

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/logging"
	"trade-confirmation-backend/internal/metrics"
	"trade-confirmation-backend/internal/models"
	"trade-confirmation-backend/internal/repository"
)

// transitions lists the manual status changes. unmatched -> matched belongs
// to the batch runner and is not reachable from here.
var transitions = map[string][]string{
	models.StatusMatched:        {models.StatusConfirmationOK, models.StatusDiferencia, models.StatusTagged, models.StatusResolved},
	models.StatusConfirmationOK: {models.StatusTagged, models.StatusResolved},
	models.StatusDiferencia:     {models.StatusTagged, models.StatusResolved},
	models.StatusTagged:         {models.StatusResolved},
}

// CanTransition reports whether a confirmation may move from one status to
// another by a user action.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Machine struct {
	db            *gorm.DB
	confirmations *repository.ConfirmationRepository
	audit         *repository.AuditRepository
	undo          UndoStore
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

func NewMachine(db *gorm.DB, undo UndoStore, m *metrics.Metrics, logger zerolog.Logger) *Machine {
	return &Machine{
		db:            db,
		confirmations: repository.NewConfirmationRepository(db),
		audit:         repository.NewAuditRepository(db),
		undo:          undo,
		metrics:       m,
		logger:        logger,
	}
}

// SetStatus moves a confirmation to newStatus and returns the status it had
// before. The previous status is kept for one undo.
func (m *Machine) SetStatus(ctx context.Context, tenantID, confirmationID uuid.UUID, newStatus, actor string) (string, error) {
	c, err := m.confirmations.GetByID(ctx, tenantID, confirmationID)
	if err != nil {
		return "", err
	}
	from := c.Status
	if !CanTransition(from, newStatus) {
		return "", &apperrors.TransitionError{From: from, To: newStatus}
	}

	if err := m.apply(ctx, confirmationID, from, newStatus, models.AuditActionSetStatus, actor); err != nil {
		return "", err
	}
	m.undo.Put(confirmationID, Slot{Previous: from, Current: newStatus})
	m.metrics.StatusChanges.WithLabelValues(models.AuditActionSetStatus).Inc()

	log := logging.WithConfirmation(m.logger, confirmationID)
	log.Info().
		Str("from", from).
		Str("to", newStatus).
		Str("actor", actor).
		Msg("Confirmation status changed")
	return from, nil
}

// Undo restores the status held before the last SetStatus. It returns the
// resulting status and false when there is nothing to undo, or when the
// status changed since the slot was recorded.
func (m *Machine) Undo(ctx context.Context, tenantID, confirmationID uuid.UUID, actor string) (string, bool, error) {
	c, err := m.confirmations.GetByID(ctx, tenantID, confirmationID)
	if err != nil {
		return "", false, err
	}

	slot, ok := m.undo.Take(confirmationID)
	if !ok || slot.Current != c.Status {
		return c.Status, false, nil
	}

	if err := m.apply(ctx, confirmationID, slot.Current, slot.Previous, models.AuditActionUndo, actor); err != nil {
		if apperrors.Is(err, apperrors.ErrConcurrencyConflict) {
			return c.Status, false, nil
		}
		return "", false, err
	}
	m.metrics.StatusChanges.WithLabelValues(models.AuditActionUndo).Inc()

	log := logging.WithConfirmation(m.logger, confirmationID)
	log.Info().
		Str("from", slot.Current).
		Str("to", slot.Previous).
		Str("actor", actor).
		Msg("Confirmation status change undone")
	return slot.Previous, true, nil
}

// CanUndo reports whether Undo would currently restore a status.
func (m *Machine) CanUndo(ctx context.Context, tenantID, confirmationID uuid.UUID) (bool, error) {
	c, err := m.confirmations.GetByID(ctx, tenantID, confirmationID)
	if err != nil {
		return false, err
	}
	slot, ok := m.undo.Peek(confirmationID)
	return ok && slot.Current == c.Status, nil
}

// apply persists the status change and its audit row together.
func (m *Machine) apply(ctx context.Context, confirmationID uuid.UUID, from, to, action, actor string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := m.confirmations.WithTx(tx).UpdateStatus(ctx, confirmationID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrConcurrencyConflict
		}
		return m.audit.WithTx(tx).Record(ctx, &models.StatusAuditLog{
			ConfirmationID: confirmationID,
			Action:         action,
			FromStatus:     from,
			ToStatus:       to,
			PerformedBy:    actor,
			CreatedAt:      time.Now(),
		})
	})
}

// History returns the confirmation's recorded status changes.
func (m *Machine) History(ctx context.Context, tenantID, confirmationID uuid.UUID) ([]models.StatusAuditLog, error) {
	if _, err := m.confirmations.GetByID(ctx, tenantID, confirmationID); err != nil {
		return nil, err
	}
	return m.audit.ForConfirmation(ctx, confirmationID)
}

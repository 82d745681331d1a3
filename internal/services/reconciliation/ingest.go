package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/models"
)

// ConfirmationInput is one record handed over by the extraction service.
type ConfirmationInput struct {
	models.TradeFields
	EmailSender          string  `json:"email_sender"`
	EmailSubject         string  `json:"email_subject"`
	BankTradeNumber      string  `json:"bank_trade_number"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
}

// IngestTrades stores uploaded trades as unmatched. Trade numbers the tenant
// already uploaded are ignored. A batch is started in the background when
// auto-reconcile is on and something new arrived.
func (s *ReconciliationService) IngestTrades(ctx context.Context, tenantID uuid.UUID, inputs []models.TradeFields) (int64, error) {
	now := time.Now()
	trades := make([]*models.Trade, 0, len(inputs))
	for _, in := range inputs {
		if in.TradeNumber == "" {
			return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "trade_number is required")
		}
		trades = append(trades, &models.Trade{
			ID:          uuid.New(),
			TenantID:    tenantID,
			TradeFields: in,
			Status:      models.StatusUnmatched,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	inserted, err := s.trades.Create(ctx, trades)
	if err != nil {
		return 0, apperrors.Wrap(err, "storing trades")
	}
	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Int("received", len(inputs)).
		Int64("inserted", inserted).
		Msg("Trades ingested")

	if inserted > 0 && s.opts.AutoReconcile {
		s.RunAsync(tenantID, TriggerUpload)
	}
	return inserted, nil
}

// IngestConfirmations stores extracted confirmations as unmatched.
func (s *ReconciliationService) IngestConfirmations(ctx context.Context, tenantID uuid.UUID, inputs []ConfirmationInput) (int, error) {
	now := time.Now()
	confirmations := make([]*models.Confirmation, 0, len(inputs))
	for _, in := range inputs {
		confirmations = append(confirmations, &models.Confirmation{
			ID:                   uuid.New(),
			TenantID:             tenantID,
			TradeFields:          in.TradeFields,
			EmailSender:          in.EmailSender,
			EmailSubject:         in.EmailSubject,
			BankTradeNumber:      in.BankTradeNumber,
			ExtractionConfidence: in.ExtractionConfidence,
			Status:               models.StatusUnmatched,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
	}

	if err := s.confirmations.Create(ctx, confirmations); err != nil {
		return 0, apperrors.Wrap(err, "storing confirmations")
	}
	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Int("inserted", len(confirmations)).
		Msg("Confirmations ingested")

	if len(confirmations) > 0 && s.opts.AutoReconcile {
		s.RunAsync(tenantID, TriggerUpload)
	}
	return len(confirmations), nil
}

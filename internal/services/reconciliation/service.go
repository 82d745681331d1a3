package reconciliation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/events"
	"trade-confirmation-backend/internal/logging"
	"trade-confirmation-backend/internal/metrics"
	"trade-confirmation-backend/internal/models"
	"trade-confirmation-backend/internal/repository"
	"trade-confirmation-backend/internal/services/matching"
)

const (
	TriggerManual = "manual"
	TriggerUpload = "upload"
	TriggerCLI    = "cli"
)

// Options tune a batch run.
type Options struct {
	MinConfidence int
	MaxPairs      int
	Timeout       time.Duration
	Workers       int
	AutoReconcile bool
}

func DefaultOptions() Options {
	return Options{
		MinConfidence: 60,
		MaxPairs:      250000,
		Timeout:       30 * time.Second,
		Workers:       4,
		AutoReconcile: true,
	}
}

// BatchResult summarises one runBatch call.
type BatchResult struct {
	BatchID                         uuid.UUID              `json:"batch_id"`
	MatchesCreated                  int                    `json:"matches_created"`
	TradesRemainingUnmatched        int                    `json:"trades_remaining_unmatched"`
	ConfirmationsRemainingUnmatched int                    `json:"confirmations_remaining_unmatched"`
	Skipped                         []models.SkippedRecord `json:"skipped"`
	Failed                          []models.FailedPair    `json:"failed"`
	Conflicts                       int                    `json:"conflicts"`
	Partial                         bool                   `json:"partial"`
	Matches                         []models.Match         `json:"matches"`
}

type ReconciliationService struct {
	db            *gorm.DB
	trades        *repository.TradeRepository
	confirmations *repository.ConfirmationRepository
	matches       *repository.MatchRepository
	batches       *repository.BatchRepository
	specs         []matching.FieldSpec
	scorer        *matching.Scorer
	publisher     events.Publisher
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	opts          Options
	locks         *tenantLocks
	background    sync.WaitGroup
}

func NewReconciliationService(
	db *gorm.DB,
	specs []matching.FieldSpec,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
	opts Options,
) *ReconciliationService {
	return &ReconciliationService{
		db:            db,
		trades:        repository.NewTradeRepository(db),
		confirmations: repository.NewConfirmationRepository(db),
		matches:       repository.NewMatchRepository(db),
		batches:       repository.NewBatchRepository(db),
		specs:         specs,
		scorer:        matching.NewScorer(specs),
		publisher:     publisher,
		metrics:       m,
		logger:        logger,
		opts:          opts,
		locks:         newTenantLocks(),
	}
}

// RunBatch reconciles every unmatched trade and confirmation of one tenant.
// Only unmatched records are eligible, so repeated runs never re-match.
// Each pair commits on its own; an aborted run leaves whole pairs only.
func (s *ReconciliationService) RunBatch(ctx context.Context, tenantID uuid.UUID, trigger string) (*BatchResult, error) {
	unlock, err := s.locks.Lock(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "waiting for tenant lock")
	}
	defer unlock()

	started := time.Now()
	batch := &models.ReconciliationBatch{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Trigger:   trigger,
		Status:    models.BatchProcessing,
		StartedAt: started,
		CreatedAt: started,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, apperrors.Wrap(err, "creating batch")
	}

	log := logging.WithBatch(logging.WithTenant(s.logger, tenantID), batch.ID)
	ctx = logging.WithLogger(ctx, log)

	result, runErr := s.run(ctx, batch)

	// The batch record is written even if the caller's context is gone.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := time.Now()
	batch.CompletedAt = &now
	switch {
	case runErr != nil:
		batch.Status = models.BatchFailed
		batch.Error = runErr.Error()
	case result.Partial:
		batch.Status = models.BatchPartial
	default:
		batch.Status = models.BatchCompleted
	}
	if result != nil {
		batch.MatchesCreated = result.MatchesCreated
		batch.TradesRemainingUnmatched = result.TradesRemainingUnmatched
		batch.ConfirmationsRemainingUnmatched = result.ConfirmationsRemainingUnmatched
		batch.Conflicts = result.Conflicts
		batch.Skipped = result.Skipped
		batch.Failed = result.Failed
	}
	if err := s.batches.Save(saveCtx, batch); err != nil {
		log.Error().Err(err).Msg("Failed to persist batch record")
	}

	s.metrics.BatchesTotal.WithLabelValues(batch.Status).Inc()
	s.metrics.BatchDuration.Observe(time.Since(started).Seconds())

	if runErr != nil {
		log.Error().Err(runErr).Msg("Reconciliation batch failed")
		return nil, runErr
	}

	log.Info().
		Str("trigger", trigger).
		Int("matches_created", result.MatchesCreated).
		Int("trades_remaining", result.TradesRemainingUnmatched).
		Int("confirmations_remaining", result.ConfirmationsRemainingUnmatched).
		Int("skipped", len(result.Skipped)).
		Int("conflicts", result.Conflicts).
		Int("failed", len(result.Failed)).
		Bool("partial", result.Partial).
		Dur("duration", time.Since(started)).
		Msg("Reconciliation batch finished")
	return result, nil
}

func (s *ReconciliationService) run(ctx context.Context, batch *models.ReconciliationBatch) (*BatchResult, error) {
	log := logging.FromContext(ctx)

	trades, err := s.trades.ListUnmatched(ctx, batch.TenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading unmatched trades")
	}
	confirmations, err := s.confirmations.ListUnmatched(ctx, batch.TenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading unmatched confirmations")
	}

	result := &BatchResult{
		BatchID: batch.ID,
		Skipped: []models.SkippedRecord{},
		Failed:  []models.FailedPair{},
		Matches: []models.Match{},
	}

	validTrades, validConfirmations := s.validate(log, trades, confirmations, result)
	validTrades, validConfirmations, capped := capPairs(validTrades, validConfirmations, s.opts.MaxPairs)
	if capped {
		result.Partial = true
		log.Warn().Int("max_pairs", s.opts.MaxPairs).Msg("Candidate set exceeds pair budget, reconciling oldest trades first")
	}
	batch.TradesConsidered = len(validTrades)
	batch.ConfirmationsConsidered = len(validConfirmations)

	budgetCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	candidates, complete := s.scoreAll(budgetCtx, validTrades, validConfirmations)
	if !complete {
		result.Partial = true
	}
	batch.CandidatePairs = len(candidates)

	for _, c := range selectPairs(candidates) {
		if budgetCtx.Err() != nil {
			result.Partial = true
			log.Warn().Err(budgetCtx.Err()).Msg("Batch budget exhausted, stopping commits")
			break
		}
		match, err := s.commitWithRetry(budgetCtx, batch, c)
		if err != nil {
			if errors.Is(err, apperrors.ErrConcurrencyConflict) {
				result.Conflicts++
				s.metrics.Conflicts.Inc()
				log.Warn().
					Str("trade_id", c.trade.ID.String()).
					Str("confirmation_id", c.confirmation.ID.String()).
					Msg("Pair claimed by another writer, skipping")
				continue
			}
			if budgetCtx.Err() != nil {
				result.Partial = true
				break
			}
			// the transaction rolled back, so both records stay unmatched
			result.Failed = append(result.Failed, models.FailedPair{
				TradeID:        c.trade.ID,
				ConfirmationID: c.confirmation.ID,
				Reason:         err.Error(),
			})
			s.metrics.RecordsSkipped.WithLabelValues("pair").Inc()
			log.Warn().Err(err).
				Str("trade_id", c.trade.ID.String()).
				Str("confirmation_id", c.confirmation.ID.String()).
				Msg("Pair commit failed, skipping")
			continue
		}
		result.Matches = append(result.Matches, *match)
		result.MatchesCreated++
	}

	s.countRemaining(ctx, batch.TenantID, result, len(trades), len(confirmations))
	return result, nil
}

// countRemaining reads the unmatched counts back from the store, so pairs
// lost to other writers are not reported as remaining. If the count fails
// the figures are derived from this batch's own outcome.
func (s *ReconciliationService) countRemaining(ctx context.Context, tenantID uuid.UUID, result *BatchResult, trades, confirmations int) {
	ctx = context.WithoutCancel(ctx)
	log := logging.FromContext(ctx)

	if n, err := s.trades.CountByStatus(ctx, tenantID, models.StatusUnmatched); err == nil {
		result.TradesRemainingUnmatched = int(n)
	} else {
		log.Warn().Err(err).Msg("Counting unmatched trades failed")
		result.TradesRemainingUnmatched = trades - result.MatchesCreated - result.Conflicts
	}
	if n, err := s.confirmations.CountByStatus(ctx, tenantID, models.StatusUnmatched); err == nil {
		result.ConfirmationsRemainingUnmatched = int(n)
	} else {
		log.Warn().Err(err).Msg("Counting unmatched confirmations failed")
		result.ConfirmationsRemainingUnmatched = confirmations - result.MatchesCreated - result.Conflicts
	}
}

// validate drops records missing a scored field and reports them.
func (s *ReconciliationService) validate(
	log zerolog.Logger,
	trades []models.Trade,
	confirmations []models.Confirmation,
	result *BatchResult,
) ([]*models.Trade, []*models.Confirmation) {
	validTrades := make([]*models.Trade, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		if err := matching.Validate("trade", t.ID.String(), t.TradeFields, s.specs); err != nil {
			result.Skipped = append(result.Skipped, models.SkippedRecord{Kind: "trade", ID: t.ID, Reason: err.Error()})
			s.metrics.RecordsSkipped.WithLabelValues("trade").Inc()
			log.Warn().Err(err).Str("trade_id", t.ID.String()).Msg("Skipping malformed trade")
			continue
		}
		validTrades = append(validTrades, t)
	}

	validConfirmations := make([]*models.Confirmation, 0, len(confirmations))
	for i := range confirmations {
		c := &confirmations[i]
		if err := matching.Validate("confirmation", c.ID.String(), matching.ConfirmationFields(c), s.specs); err != nil {
			result.Skipped = append(result.Skipped, models.SkippedRecord{Kind: "confirmation", ID: c.ID, Reason: err.Error()})
			s.metrics.RecordsSkipped.WithLabelValues("confirmation").Inc()
			log.Warn().Err(err).Str("confirmation_id", c.ID.String()).Msg("Skipping malformed confirmation")
			continue
		}
		validConfirmations = append(validConfirmations, c)
	}
	return validTrades, validConfirmations
}

// capPairs trims the inputs so at most maxPairs pairs get scored. Trades
// are already ordered oldest first, so the newest wait for the next run.
func capPairs(trades []*models.Trade, confirmations []*models.Confirmation, maxPairs int) ([]*models.Trade, []*models.Confirmation, bool) {
	if len(trades) == 0 || len(confirmations) == 0 || len(trades)*len(confirmations) <= maxPairs {
		return trades, confirmations, false
	}
	if len(confirmations) > maxPairs {
		confirmations = confirmations[:maxPairs]
	}
	maxTrades := maxPairs / len(confirmations)
	if maxTrades < 1 {
		maxTrades = 1
	}
	if maxTrades < len(trades) {
		trades = trades[:maxTrades]
	}
	return trades, confirmations, true
}

// commitWithRetry commits a pair, retrying once with fresh versions if an
// optimistic check failed and both records are still unmatched.
func (s *ReconciliationService) commitWithRetry(ctx context.Context, batch *models.ReconciliationBatch, c candidate) (*models.Match, error) {
	match, err := s.commitPair(ctx, batch, c)
	if !errors.Is(err, apperrors.ErrConcurrencyConflict) {
		return match, err
	}

	trade, err := s.trades.GetByID(ctx, batch.TenantID, c.trade.ID)
	if err != nil {
		return nil, err
	}
	confirmation, err := s.confirmations.GetByID(ctx, batch.TenantID, c.confirmation.ID)
	if err != nil {
		return nil, err
	}
	if trade.Status != models.StatusUnmatched || confirmation.Status != models.StatusUnmatched {
		return nil, apperrors.ErrConcurrencyConflict
	}
	c.trade, c.confirmation = trade, confirmation
	return s.commitPair(ctx, batch, c)
}

// commitPair creates the match and moves both sides through matched to the
// outcome status in one transaction.
func (s *ReconciliationService) commitPair(ctx context.Context, batch *models.ReconciliationBatch, c candidate) (*models.Match, error) {
	outcome := models.StatusConfirmationOK
	if len(c.score.Discrepancies) > 0 {
		outcome = models.StatusDiferencia
	}

	batchID := batch.ID
	match := &models.Match{
		ID:              uuid.New(),
		TenantID:        batch.TenantID,
		BatchID:         &batchID,
		TradeID:         c.trade.ID,
		ConfirmationID:  c.confirmation.ID,
		ConfidenceScore: c.score.Confidence,
		MatchReasons:    c.score.Reasons,
		Discrepancies:   c.score.Discrepancies,
		Status:          outcome,
		CreatedAt:       time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trades := s.trades.WithTx(tx)
		confirmations := s.confirmations.WithTx(tx)

		ok, err := trades.Claim(ctx, c.trade.ID, c.trade.Version, models.StatusMatched)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrConcurrencyConflict
		}
		ok, err = confirmations.Claim(ctx, c.confirmation.ID, c.confirmation.Version, models.StatusMatched)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrConcurrencyConflict
		}

		if err := s.matches.WithTx(tx).Create(ctx, match); err != nil {
			return apperrors.Wrap(err, "creating match")
		}

		if _, err := trades.UpdateStatus(ctx, c.trade.ID, models.StatusMatched, outcome); err != nil {
			return err
		}
		_, err = confirmations.UpdateStatus(ctx, c.confirmation.ID, models.StatusMatched, outcome)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MatchesCreated.WithLabelValues(outcome).Inc()
	s.publish(ctx, events.New(events.MatchCreated, batch.TenantID, map[string]interface{}{
		"match_id":         match.ID.String(),
		"trade_id":         match.TradeID.String(),
		"confirmation_id":  match.ConfirmationID.String(),
		"confidence_score": match.ConfidenceScore,
		"status":           match.Status,
	}))
	s.publish(ctx, events.New(events.TradeMatched, batch.TenantID, map[string]interface{}{
		"trade_id":     c.trade.ID.String(),
		"trade_number": c.trade.TradeNumber,
		"status":       outcome,
	}))
	return match, nil
}

func (s *ReconciliationService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		log := logging.FromContext(ctx)
		log.Warn().Err(err).Str("event", e.Type).Msg("Failed to publish event")
	}
}

// RunAsync starts a batch in the background, for post-upload triggers.
func (s *ReconciliationService) RunAsync(tenantID uuid.UUID, trigger string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if _, err := s.RunBatch(context.Background(), tenantID, trigger); err != nil {
			s.logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("Background reconciliation failed")
		}
	}()
}

// Wait blocks until background batches have finished.
func (s *ReconciliationService) Wait() {
	s.background.Wait()
}

func (s *ReconciliationService) GetBatch(ctx context.Context, id uuid.UUID) (*models.ReconciliationBatch, error) {
	return s.batches.Get(ctx, id)
}

func (s *ReconciliationService) ListMatches(ctx context.Context, tenantID uuid.UUID, status, cursor string, limit int) ([]models.Match, string, error) {
	return s.matches.List(ctx, tenantID, status, cursor, limit)
}

func (s *ReconciliationService) MatchStats(ctx context.Context, tenantID uuid.UUID) (repository.MatchStats, error) {
	return s.matches.Stats(ctx, tenantID)
}

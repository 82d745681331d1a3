// Package settlement picks the settlement rule and bank account for a
// confirmed match.
package settlement

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/events"
	"trade-confirmation-backend/internal/metrics"
	"trade-confirmation-backend/internal/models"
	"trade-confirmation-backend/internal/repository"
)

// Instruction is handed to document generation. It is only produced when
// a rule and an account owned by the tenant were both found.
type Instruction struct {
	Match          models.Match          `json:"match"`
	SettlementRule models.SettlementRule `json:"settlement_rule"`
	BankAccount    models.BankAccount    `json:"bank_account"`
}

type Resolver struct {
	matches   *repository.MatchRepository
	trades    *repository.TradeRepository
	rules     *repository.SettlementRepository
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewResolver(db *gorm.DB, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Resolver {
	return &Resolver{
		matches:   repository.NewMatchRepository(db),
		trades:    repository.NewTradeRepository(db),
		rules:     repository.NewSettlementRepository(db),
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// SelectRule returns the active rule with the lowest priority whose product,
// direction and currency match the trade. Rules naming the counterparty are
// tried before wildcard rules. rules must be ordered by priority.
func SelectRule(rules []models.SettlementRule, trade models.TradeFields) (*models.SettlementRule, bool) {
	counterparty := strings.TrimSpace(trade.CounterpartyName)

	var wildcard *models.SettlementRule
	for i := range rules {
		r := &rules[i]
		if !r.Active || !sameValue(r.Product, trade.ProductType) ||
			!sameValue(r.Direction, trade.Direction) || !sameValue(r.Currency, trade.SettlementCurrency) {
			continue
		}
		rc := strings.TrimSpace(r.Counterparty)
		if rc == models.WildcardCounterparty {
			if wildcard == nil {
				wildcard = r
			}
			continue
		}
		if counterparty != "" && strings.EqualFold(rc, counterparty) {
			return r, true
		}
	}
	return wildcard, wildcard != nil
}

func sameValue(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Resolve builds the settlement instruction for a tenant's match. A missing
// rule or account blocks the instruction; no default account is used.
func (r *Resolver) Resolve(ctx context.Context, tenantID, matchID uuid.UUID) (*Instruction, error) {
	match, err := r.matches.Get(ctx, tenantID, matchID)
	if err != nil {
		return nil, err
	}
	trade, err := r.trades.GetByID(ctx, tenantID, match.TradeID)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading matched trade")
	}

	rules, err := r.rules.ActiveRules(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading settlement rules")
	}

	rule, ok := SelectRule(rules, trade.TradeFields)
	if !ok {
		r.metrics.SettlementsTotal.WithLabelValues("no_rule").Inc()
		noRule := &apperrors.NoMatchingRuleError{
			TenantID:     tenantID.String(),
			Counterparty: trade.CounterpartyName,
			Product:      trade.ProductType,
			Direction:    trade.Direction,
			Currency:     trade.SettlementCurrency,
		}
		r.logger.Warn().
			Str("tenant_id", tenantID.String()).
			Str("match_id", matchID.String()).
			Err(noRule).
			Msg("Settlement blocked")
		return nil, noRule
	}

	account, err := r.rules.GetBankAccount(ctx, tenantID, rule.BankAccountID)
	if err != nil {
		r.metrics.SettlementsTotal.WithLabelValues("missing_account").Inc()
		return nil, apperrors.Wrapf(err, "settlement rule %s", rule.ID)
	}

	r.metrics.SettlementsTotal.WithLabelValues("resolved").Inc()
	if err := r.publisher.Publish(ctx, events.New(events.SettlementGenerated, tenantID, map[string]interface{}{
		"match_id":        match.ID.String(),
		"trade_number":    trade.TradeNumber,
		"rule_id":         rule.ID.String(),
		"bank_account_id": account.ID.String(),
	})); err != nil {
		r.logger.Warn().Err(err).Str("event", events.SettlementGenerated).Msg("Failed to publish event")
	}

	r.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("match_id", matchID.String()).
		Str("rule_id", rule.ID.String()).
		Int("priority", rule.Priority).
		Msg("Settlement resolved")

	return &Instruction{Match: *match, SettlementRule: *rule, BankAccount: *account}, nil
}

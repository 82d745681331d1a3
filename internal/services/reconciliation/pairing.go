package reconciliation

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"trade-confirmation-backend/internal/models"
	"trade-confirmation-backend/internal/services/matching"
)

type candidate struct {
	trade        *models.Trade
	confirmation *models.Confirmation
	score        matching.ScoreResult
}

// scoreAll scores every trade against every confirmation, fanning trades
// out across workers. Pairs under the confidence floor are dropped. It
// reports false if ctx ended before every trade was scored.
func (s *ReconciliationService) scoreAll(ctx context.Context, trades []*models.Trade, confirmations []*models.Confirmation) ([]candidate, bool) {
	perTrade := make([][]candidate, len(trades))
	confFields := make([]models.TradeFields, len(confirmations))
	for i, c := range confirmations {
		confFields[i] = matching.ConfirmationFields(c)
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, t := range trades {
		i, t := i, t
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			var out []candidate
			for j, c := range confirmations {
				res := s.scorer.Score(t.TradeFields, confFields[j])
				if res.Confidence < s.opts.MinConfidence {
					continue
				}
				out = append(out, candidate{trade: t, confirmation: c, score: res})
			}
			perTrade[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var all []candidate
	for _, cs := range perTrade {
		all = append(all, cs...)
	}
	return all, ctx.Err() == nil
}

// rank orders candidates by confidence, then fewer discrepancies, then the
// earlier trade upload. Ids settle anything left so the order is total.
func rank(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score.Confidence != b.score.Confidence {
			return a.score.Confidence > b.score.Confidence
		}
		if len(a.score.Discrepancies) != len(b.score.Discrepancies) {
			return len(a.score.Discrepancies) < len(b.score.Discrepancies)
		}
		if !a.trade.CreatedAt.Equal(b.trade.CreatedAt) {
			return a.trade.CreatedAt.Before(b.trade.CreatedAt)
		}
		if !a.confirmation.CreatedAt.Equal(b.confirmation.CreatedAt) {
			return a.confirmation.CreatedAt.Before(b.confirmation.CreatedAt)
		}
		if a.trade.ID != b.trade.ID {
			return a.trade.ID.String() < b.trade.ID.String()
		}
		return a.confirmation.ID.String() < b.confirmation.ID.String()
	})
}

// selectPairs ranks candidates and greedily keeps the best pair for each
// trade and confirmation not already claimed by a higher-ranked pair.
func selectPairs(candidates []candidate) []candidate {
	rank(candidates)

	claimedTrades := make(map[uuid.UUID]bool)
	claimedConfirmations := make(map[uuid.UUID]bool)
	var selected []candidate
	for _, c := range candidates {
		if claimedTrades[c.trade.ID] || claimedConfirmations[c.confirmation.ID] {
			continue
		}
		claimedTrades[c.trade.ID] = true
		claimedConfirmations[c.confirmation.ID] = true
		selected = append(selected, c)
	}
	return selected
}

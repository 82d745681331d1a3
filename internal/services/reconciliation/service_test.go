package reconciliation

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/events"
	"trade-confirmation-backend/internal/metrics"
	"trade-confirmation-backend/internal/models"
	"trade-confirmation-backend/internal/services/matching"
	"trade-confirmation-backend/internal/testutil"
)

type fixture struct {
	db        *gorm.DB
	svc       *ReconciliationService
	publisher *events.MemoryPublisher
	tenant    *models.Tenant
}

func newFixture(t *testing.T, tol matching.Tolerances, mutate func(*Options)) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	opts := DefaultOptions()
	opts.AutoReconcile = false
	if mutate != nil {
		mutate(&opts)
	}
	pub := &events.MemoryPublisher{}
	svc := NewReconciliationService(db, matching.DefaultFieldSpecs(tol), pub, metrics.NewUnregistered(), zerolog.Nop(), opts)
	return &fixture{
		db:        db,
		svc:       svc,
		publisher: pub,
		tenant:    testutil.CreateTenant(t, db, "Acme Treasury "+uuid.NewString()[:8]),
	}
}

func basisPoint() matching.Tolerances {
	tol := matching.DefaultTolerances()
	tol.Price = decimal.RequireFromString("0.0001")
	return tol
}

func (f *fixture) reloadTrade(t *testing.T, id uuid.UUID) models.Trade {
	var tr models.Trade
	require.NoError(t, f.db.First(&tr, "id = ?", id).Error)
	return tr
}

func (f *fixture) reloadConfirmation(t *testing.T, id uuid.UUID) models.Confirmation {
	var c models.Confirmation
	require.NoError(t, f.db.First(&c, "id = ?", id).Error)
	return c
}

func TestRunBatch_PriceDiscrepancy(t *testing.T) {
	f := newFixture(t, basisPoint(), nil)
	ctx := context.Background()

	trade := testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	confFields := testutil.TradeFields("T1")
	confFields.Price = decimal.RequireFromString("950.50")
	conf := testutil.CreateConfirmation(t, f.db, f.tenant.ID, confFields, "ops@banka.com")

	res, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, res.MatchesCreated)
	assert.Equal(t, 0, res.TradesRemainingUnmatched)
	assert.Equal(t, 0, res.ConfirmationsRemainingUnmatched)

	m := res.Matches[0]
	assert.GreaterOrEqual(t, m.ConfidenceScore, 90)
	assert.Equal(t, models.StatusDiferencia, m.Status)
	require.Len(t, m.Discrepancies, 1)
	assert.Equal(t, "price", m.Discrepancies[0].Field)
	assert.True(t, decimal.RequireFromString(m.Discrepancies[0].TradeValue).Equal(decimal.RequireFromString("950")))
	assert.True(t, decimal.RequireFromString(m.Discrepancies[0].ConfirmationValue).Equal(decimal.RequireFromString("950.5")))

	assert.Equal(t, models.StatusDiferencia, f.reloadTrade(t, trade.ID).Status)
	assert.Equal(t, models.StatusDiferencia, f.reloadConfirmation(t, conf.ID).Status)

	var stored models.Match
	require.NoError(t, f.db.First(&stored, "id = ?", m.ID).Error)
	assert.Equal(t, trade.ID, stored.TradeID)
	assert.Equal(t, conf.ID, stored.ConfirmationID)
	assert.Len(t, stored.Discrepancies, 1)
	assert.Contains(t, []string(stored.MatchReasons), "counterpartyName")
}

func TestRunBatch_CleanMatchIsConfirmationOK(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)

	trade := testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	conf := testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields(""), "ops@banka.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, res.MatchesCreated)
	assert.Equal(t, 100, res.Matches[0].ConfidenceScore)
	assert.Equal(t, models.StatusConfirmationOK, res.Matches[0].Status)
	assert.Equal(t, models.StatusConfirmationOK, f.reloadTrade(t, trade.ID).Status)
	assert.Equal(t, models.StatusConfirmationOK, f.reloadConfirmation(t, conf.ID).Status)

	assert.Len(t, f.publisher.OfType(events.MatchCreated), 1)
	matched := f.publisher.OfType(events.TradeMatched)
	require.Len(t, matched, 1)
	assert.Equal(t, "T1", matched[0].Payload["trade_number"])
}

func TestRunBatch_HigherConfidenceWins(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)

	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())

	near := testutil.TradeFields("T1")
	near.Price = decimal.RequireFromString("960")
	best := testutil.CreateConfirmation(t, f.db, f.tenant.ID, near, "a@bank.com")

	far := testutil.TradeFields("T1")
	far.Price = decimal.RequireFromString("960")
	far.Quantity1 = decimal.RequireFromString("90000")
	other := testutil.CreateConfirmation(t, f.db, f.tenant.ID, far, "b@bank.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, res.MatchesCreated)
	assert.Equal(t, best.ID, res.Matches[0].ConfirmationID)
	assert.Equal(t, 1, res.ConfirmationsRemainingUnmatched)
	assert.Equal(t, models.StatusUnmatched, f.reloadConfirmation(t, other.ID).Status)
}

func TestRunBatch_Idempotent(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	ctx := context.Background()

	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), "a@bank.com")

	first, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, first.MatchesCreated)

	second, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, second.MatchesCreated)
	assert.Equal(t, 0, second.TradesRemainingUnmatched)

	var count int64
	require.NoError(t, f.db.Model(&models.Match{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRunBatch_SkipsMalformedRecords(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)

	broken := testutil.TradeFields("T0")
	broken.Currency2 = ""
	bad := testutil.CreateTrade(t, f.db, f.tenant.ID, broken, time.Now().Add(-time.Hour))
	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), "a@bank.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesCreated)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, bad.ID, res.Skipped[0].ID)
	assert.Equal(t, "trade", res.Skipped[0].Kind)
	assert.Contains(t, res.Skipped[0].Reason, "currency2")
	assert.Equal(t, 1, res.TradesRemainingUnmatched)
	assert.Equal(t, models.StatusUnmatched, f.reloadTrade(t, bad.ID).Status)
}

func TestRunBatch_BelowMinConfidenceStaysUnmatched(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)

	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	other := testutil.TradeFields("X9")
	other.CounterpartyName = "Bank Z"
	other.Direction = models.DirectionSell
	other.Currency1 = "EUR"
	other.Quantity1 = decimal.RequireFromString("5")
	testutil.CreateConfirmation(t, f.db, f.tenant.ID, other, "z@bank.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchesCreated)
	assert.Equal(t, 1, res.TradesRemainingUnmatched)
	assert.Equal(t, 1, res.ConfirmationsRemainingUnmatched)
}

func TestRunBatch_TenantsAreIsolated(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	otherTenant := testutil.CreateTenant(t, f.db, "Other Corp")

	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	testutil.CreateConfirmation(t, f.db, otherTenant.ID, testutil.TradeFields("T1"), "a@bank.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchesCreated)
}

func TestRunBatch_ConcurrentRunsNeverDoubleClaim(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	for i, n := range []string{"T1", "T2", "T3"} {
		fields := testutil.TradeFields(n)
		fields.Quantity1 = decimal.NewFromInt(int64(1000 * (i + 1)))
		testutil.CreateTrade(t, f.db, f.tenant.ID, fields, time.Now())
		testutil.CreateConfirmation(t, f.db, f.tenant.ID, fields, "a@bank.com")
	}

	var wg sync.WaitGroup
	results := make([]*BatchResult, 4)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		if r != nil {
			total += r.MatchesCreated
		}
	}
	assert.Equal(t, 3, total)

	var matches []models.Match
	require.NoError(t, f.db.Find(&matches).Error)
	seenTrades := map[uuid.UUID]bool{}
	seenConfs := map[uuid.UUID]bool{}
	for _, m := range matches {
		assert.False(t, seenTrades[m.TradeID])
		assert.False(t, seenConfs[m.ConfirmationID])
		seenTrades[m.TradeID] = true
		seenConfs[m.ConfirmationID] = true
	}
}

func TestRunBatch_PairBudgetReturnsPartialResult(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), func(o *Options) { o.MaxPairs = 1 })
	base := time.Now()

	first := testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), base.Add(-time.Minute))
	second := testutil.TradeFields("T2")
	second.Quantity1 = decimal.RequireFromString("250000")
	testutil.CreateTrade(t, f.db, f.tenant.ID, second, base)
	testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), "a@bank.com")
	testutil.CreateConfirmation(t, f.db, f.tenant.ID, second, "a@bank.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	require.Equal(t, 1, res.MatchesCreated)
	assert.Equal(t, first.ID, res.Matches[0].TradeID)
	assert.Equal(t, 1, res.TradesRemainingUnmatched)

	batch, err := f.svc.GetBatch(context.Background(), res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPartial, batch.Status)
}

// afterFirstMatchInsert runs sql inside the transaction of the first pair
// commit, right after its match row is written.
func afterFirstMatchInsert(t *testing.T, db *gorm.DB, sql string, args ...interface{}) {
	t.Helper()
	var once sync.Once
	err := db.Callback().Create().After("gorm:create").Register("test:after_first_match", func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.Table != "matches" {
			return
		}
		once.Do(func() {
			require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Exec(sql, args...).Error)
		})
	})
	require.NoError(t, err)
}

// twoPairs stores two trades, each with one exact confirmation.
func (f *fixture) twoPairs(t *testing.T) {
	t.Helper()
	base := time.Now()
	for i, n := range []string{"T1", "T2"} {
		fields := testutil.TradeFields(n)
		fields.Quantity1 = decimal.NewFromInt(int64(100000 * (i + 1)))
		testutil.CreateTrade(t, f.db, f.tenant.ID, fields, base.Add(time.Duration(i)*time.Minute))
		testutil.CreateConfirmation(t, f.db, f.tenant.ID, fields, "a@bank.com")
	}
}

// assertWholePairs checks that every matched record belongs to exactly one
// committed match and carries its outcome status.
func (f *fixture) assertWholePairs(t *testing.T) {
	t.Helper()
	var matches []models.Match
	require.NoError(t, f.db.Where("tenant_id = ?", f.tenant.ID).Find(&matches).Error)
	for _, m := range matches {
		assert.Equal(t, m.Status, f.reloadTrade(t, m.TradeID).Status)
		assert.Equal(t, m.Status, f.reloadConfirmation(t, m.ConfirmationID).Status)
	}

	var trades, confirmations int64
	require.NoError(t, f.db.Model(&models.Trade{}).
		Where("tenant_id = ? AND status <> ?", f.tenant.ID, models.StatusUnmatched).Count(&trades).Error)
	require.NoError(t, f.db.Model(&models.Confirmation{}).
		Where("tenant_id = ? AND status <> ?", f.tenant.ID, models.StatusUnmatched).Count(&confirmations).Error)
	assert.EqualValues(t, len(matches), trades)
	assert.EqualValues(t, len(matches), confirmations)
}

func TestRunBatch_TimeBudget(t *testing.T) {
	t.Run("expires before scoring finishes", func(t *testing.T) {
		f := newFixture(t, matching.DefaultTolerances(), func(o *Options) { o.Timeout = time.Nanosecond })
		base := time.Now()
		for i := 0; i < 40; i++ {
			fields := testutil.TradeFields("T" + strconv.Itoa(i))
			fields.Quantity1 = decimal.NewFromInt(int64(1000 * (i + 1)))
			testutil.CreateTrade(t, f.db, f.tenant.ID, fields, base.Add(time.Duration(i)*time.Second))
			testutil.CreateConfirmation(t, f.db, f.tenant.ID, fields, "a@bank.com")
		}

		res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
		require.NoError(t, err)
		assert.True(t, res.Partial)
		assert.Equal(t, 40-res.MatchesCreated, res.TradesRemainingUnmatched)

		batch, err := f.svc.GetBatch(context.Background(), res.BatchID)
		require.NoError(t, err)
		assert.Equal(t, models.BatchPartial, batch.Status)
		assert.Equal(t, res.MatchesCreated, batch.MatchesCreated)
		f.assertWholePairs(t)
	})

	t.Run("expires between commits", func(t *testing.T) {
		f := newFixture(t, matching.DefaultTolerances(), func(o *Options) { o.Timeout = 150 * time.Millisecond })
		base := time.Now()
		for i := 0; i < 10; i++ {
			fields := testutil.TradeFields("T" + strconv.Itoa(i))
			fields.Quantity1 = decimal.NewFromInt(int64(1000 * (i + 1)))
			testutil.CreateTrade(t, f.db, f.tenant.ID, fields, base.Add(time.Duration(i)*time.Second))
			testutil.CreateConfirmation(t, f.db, f.tenant.ID, fields, "a@bank.com")
		}
		// slow every commit down so the budget runs out part way
		require.NoError(t, f.db.Callback().Create().After("gorm:create").Register("test:slow_commit", func(tx *gorm.DB) {
			if tx.Statement.Table == "matches" {
				time.Sleep(40 * time.Millisecond)
			}
		}))

		res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
		require.NoError(t, err)
		assert.True(t, res.Partial)
		assert.Less(t, res.MatchesCreated, 10)
		assert.Empty(t, res.Failed)

		var stored int64
		require.NoError(t, f.db.Model(&models.Match{}).Count(&stored).Error)
		assert.EqualValues(t, res.MatchesCreated, stored)

		batch, err := f.svc.GetBatch(context.Background(), res.BatchID)
		require.NoError(t, err)
		assert.Equal(t, models.BatchPartial, batch.Status)
		assert.Equal(t, res.MatchesCreated, batch.MatchesCreated)
		assert.Equal(t, 10-res.MatchesCreated, batch.TradesRemainingUnmatched)
		f.assertWholePairs(t)
	})
}

func TestRunBatch_FailedPairDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	f.twoPairs(t)
	// the other trade disappears while the first pair commits
	afterFirstMatchInsert(t, f.db, "DELETE FROM trades WHERE tenant_id = ? AND status = ?", f.tenant.ID, models.StatusUnmatched)

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 1, res.MatchesCreated)
	assert.Zero(t, res.Conflicts)
	require.Len(t, res.Failed, 1)
	failed := res.Failed[0]
	assert.NotEqual(t, res.Matches[0].TradeID, failed.TradeID)
	assert.Contains(t, failed.Reason, "not found")
	assert.Equal(t, models.StatusUnmatched, f.reloadConfirmation(t, failed.ConfirmationID).Status)
	assert.Equal(t, 0, res.TradesRemainingUnmatched)
	assert.Equal(t, 1, res.ConfirmationsRemainingUnmatched)

	batch, err := f.svc.GetBatch(context.Background(), res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.Equal(t, 1, batch.MatchesCreated)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, failed.TradeID, batch.Failed[0].TradeID)
	assert.Empty(t, batch.Error)
}

func TestRunBatch_ConflictedRecordsAreNotRemaining(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	f.twoPairs(t)
	// another writer settles the other confirmation mid batch
	afterFirstMatchInsert(t, f.db,
		"UPDATE confirmations SET status = ?, version = version + 1 WHERE tenant_id = ? AND status = ?",
		models.StatusConfirmationOK, f.tenant.ID, models.StatusUnmatched)

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesCreated)
	assert.Equal(t, 1, res.Conflicts)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 1, res.TradesRemainingUnmatched, "the losing trade rolled back to unmatched")
	assert.Equal(t, 0, res.ConfirmationsRemainingUnmatched)

	batch, err := f.svc.GetBatch(context.Background(), res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.ConfirmationsRemainingUnmatched)
	assert.Equal(t, 1, batch.Conflicts)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker unavailable")
}

func TestRunBatch_PublishFailureKeepsMatch(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	f.svc.publisher = failingPublisher{}
	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	conf := testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), "a@bank.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, res.MatchesCreated)
	assert.Equal(t, models.StatusConfirmationOK, f.reloadConfirmation(t, conf.ID).Status)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBatch_PersistsBatchRecord(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), time.Now())
	testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields("T1"), "a@bank.com")

	res, err := f.svc.RunBatch(context.Background(), f.tenant.ID, TriggerCLI)
	require.NoError(t, err)

	batch, err := f.svc.GetBatch(context.Background(), res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.Equal(t, TriggerCLI, batch.Trigger)
	assert.Equal(t, 1, batch.MatchesCreated)
	assert.Equal(t, 1, batch.CandidatePairs)
	assert.NotNil(t, batch.CompletedAt)

	_, err = f.svc.GetBatch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCommitWithRetry(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	ctx := context.Background()
	batch := &models.ReconciliationBatch{ID: uuid.New(), TenantID: f.tenant.ID}
	scorer := matching.NewScorer(matching.DefaultFieldSpecs(matching.DefaultTolerances()))

	t.Run("stale version is retried", func(t *testing.T) {
		trade := testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("R1"), time.Now())
		conf := testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields("R1"), "a@bank.com")
		// another writer touched the trade without matching it
		require.NoError(t, f.db.Model(&models.Trade{}).Where("id = ?", trade.ID).Update("version", 7).Error)

		c := candidate{trade: trade, confirmation: conf, score: scorer.Score(trade.TradeFields, conf.TradeFields)}
		m, err := f.svc.commitWithRetry(ctx, batch, c)
		require.NoError(t, err)
		assert.Equal(t, trade.ID, m.TradeID)
	})

	t.Run("already matched is a conflict", func(t *testing.T) {
		trade := testutil.CreateTrade(t, f.db, f.tenant.ID, testutil.TradeFields("R2"), time.Now())
		conf := testutil.CreateConfirmation(t, f.db, f.tenant.ID, testutil.TradeFields("R2"), "a@bank.com")
		require.NoError(t, f.db.Model(&models.Confirmation{}).Where("id = ?", conf.ID).
			Updates(map[string]interface{}{"status": models.StatusConfirmationOK, "version": 2}).Error)

		c := candidate{trade: trade, confirmation: conf, score: scorer.Score(trade.TradeFields, conf.TradeFields)}
		_, err := f.svc.commitWithRetry(ctx, batch, c)
		assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
		assert.Equal(t, models.StatusUnmatched, f.reloadTrade(t, trade.ID).Status, "claim rolled back")
	})
}

func TestIngest(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), nil)
	ctx := context.Background()

	n, err := f.svc.IngestTrades(ctx, f.tenant.ID, []models.TradeFields{testutil.TradeFields("T1"), testutil.TradeFields("T2")})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.svc.IngestTrades(ctx, f.tenant.ID, []models.TradeFields{testutil.TradeFields("T1")})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "duplicate trade numbers are ignored")

	_, err = f.svc.IngestTrades(ctx, f.tenant.ID, []models.TradeFields{testutil.TradeFields("")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	count, err := f.svc.IngestConfirmations(ctx, f.tenant.ID, []ConfirmationInput{{
		TradeFields:          testutil.TradeFields(""),
		EmailSender:          "fx@banka.com",
		BankTradeNumber:      "BK-1",
		ExtractionConfidence: 0.91,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	res, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesCreated)
	assert.Equal(t, 1, res.TradesRemainingUnmatched)
}

func TestIngestTriggersBackgroundBatch(t *testing.T) {
	f := newFixture(t, matching.DefaultTolerances(), func(o *Options) { o.AutoReconcile = true })
	ctx := context.Background()

	_, err := f.svc.IngestConfirmations(ctx, f.tenant.ID, []ConfirmationInput{{TradeFields: testutil.TradeFields("T1"), EmailSender: "a@bank.com"}})
	require.NoError(t, err)
	_, err = f.svc.IngestTrades(ctx, f.tenant.ID, []models.TradeFields{testutil.TradeFields("T1")})
	require.NoError(t, err)
	f.svc.Wait()

	var count int64
	require.NoError(t, f.db.Model(&models.Match{}).Where("tenant_id = ?", f.tenant.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestListMatchesAndStats(t *testing.T) {
	f := newFixture(t, basisPoint(), nil)
	ctx := context.Background()
	for i, price := range []string{"950", "950.5", "950"} {
		n := []string{"A", "B", "C"}[i]
		fields := testutil.TradeFields(n)
		fields.Quantity1 = decimal.NewFromInt(int64(1000 * (i + 1)))
		testutil.CreateTrade(t, f.db, f.tenant.ID, fields, time.Now())
		fields.Price = decimal.RequireFromString(price)
		testutil.CreateConfirmation(t, f.db, f.tenant.ID, fields, "a@bank.com")
	}
	_, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual)
	require.NoError(t, err)

	page, next, err := f.svc.ListMatches(ctx, f.tenant.ID, "", "", 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	require.NotEmpty(t, next)

	rest, next, err := f.svc.ListMatches(ctx, f.tenant.ID, "", next, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Empty(t, next)

	diffs, _, err := f.svc.ListMatches(ctx, f.tenant.ID, models.StatusDiferencia, "", 10)
	require.NoError(t, err)
	assert.Len(t, diffs, 1)

	stats, err := f.svc.MatchStats(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.ConfirmedCount)
	assert.EqualValues(t, 1, stats.DiferenciaCount)
}

func TestRunBatch_RepeatedRunsKeepOneMatchPerRecord(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("each record is matched at most once and reruns add nothing", prop.ForAll(
		func(quantities []int64, prices []int64) bool {
			if len(quantities) == 0 {
				return true
			}
			f := newFixture(t, matching.DefaultTolerances(), nil)
			ctx := context.Background()
			for i, q := range quantities {
				fields := testutil.TradeFields("P" + strconv.Itoa(i))
				fields.Quantity1 = decimal.NewFromInt(q)
				testutil.CreateTrade(t, f.db, f.tenant.ID, fields, time.Now())
			}
			for i, p := range prices {
				fields := testutil.TradeFields("")
				fields.Quantity1 = decimal.NewFromInt(quantities[i%len(quantities)])
				fields.Price = decimal.NewFromInt(p)
				testutil.CreateConfirmation(t, f.db, f.tenant.ID, fields, "a@bank.com")
			}

			if _, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual); err != nil {
				return false
			}
			again, err := f.svc.RunBatch(ctx, f.tenant.ID, TriggerManual)
			if err != nil || again.MatchesCreated != 0 {
				return false
			}

			var matches []models.Match
			if err := f.db.Where("tenant_id = ?", f.tenant.ID).Find(&matches).Error; err != nil {
				return false
			}
			trades := map[uuid.UUID]bool{}
			confs := map[uuid.UUID]bool{}
			for _, m := range matches {
				if trades[m.TradeID] || confs[m.ConfirmationID] {
					return false
				}
				trades[m.TradeID] = true
				confs[m.ConfirmationID] = true
			}
			return len(matches) <= min(len(quantities), len(prices))
		},
		gen.SliceOfN(4, gen.Int64Range(1, 3)),
		gen.SliceOfN(5, gen.Int64Range(945, 955)),
	))

	properties.TestingRun(t)
}

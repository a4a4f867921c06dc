package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/rules"
	"github.com/ledgersync-dev/ledgersync/internal/store"
	"github.com/ledgersync-dev/ledgersync/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strptr(s string) *string { return &s }
func catptr(id int64) *int64  { return &id }

func newService(st store.Store) *Service {
	return NewService(st, rules.NewEngine(st))
}

func providerTx(key, amount string) model.ExternalTransaction {
	return model.ExternalTransaction{
		CorrelationKey:   strptr(key),
		Polarity:         model.PolarityPayable,
		Amount:           dec(amount),
		Description:      "ACME ENERGY CO",
		CounterpartyName: "Acme Energy",
		OccurredOn:       model.Date(2024, 3, 12),
		DueDate:          model.Date(2024, 3, 10),
		ProviderTag:      "contaazul",
	}
}

func TestUpsert_CreateThenIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := newService(st)

	tx := providerTx("contaazul:evt-1", "150.00")

	rec, created, err := svc.Upsert(ctx, 1, "batch-a", tx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "batch-a", rec.SourceBatchID)
	assert.Equal(t, "Acme Energy", rec.CounterpartyName)
	assert.False(t, rec.IsSettled)

	again, created, err := svc.Upsert(ctx, 1, "batch-b", tx)
	require.NoError(t, err)
	assert.False(t, created, "second delivery is a no-op update")
	assert.Equal(t, rec.ID, again.ID)
}

func TestUpsert_RefreshesFinancialStateOnly(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := newService(st)

	tx := providerTx("contaazul:evt-1", "150.00")
	rec, _, err := svc.Upsert(ctx, 1, "batch-a", tx)
	require.NoError(t, err)

	// A human corrects classification and due date after the first sync.
	rec.CategoryID = catptr(42)
	rec.DreArea = model.DreAreaAdministrative
	rec.BankAccountID = catptr(9)
	rec.DueDate = model.Date(2024, 3, 20)
	require.NoError(t, st.UpdateRecord(ctx, rec))

	// Next sync: amount corrected and settled upstream.
	next := providerTx("contaazul:evt-1", "155.00")
	next.Settled = true
	settledOn := model.Date(2024, 3, 13)
	next.SettlementDate = &settledOn
	next.DueDate = model.Date(2024, 3, 11)

	got, created, err := svc.Upsert(ctx, 1, "batch-b", next)
	require.NoError(t, err)
	assert.False(t, created)

	assert.True(t, got.Amount.Equal(dec("155.00")), "amount correction is applied")
	assert.True(t, got.IsSettled)
	require.NotNil(t, got.SettlementDate)
	assert.Equal(t, settledOn, *got.SettlementDate)

	assert.Equal(t, int64(42), *got.CategoryID, "human classification survives the sync")
	assert.Equal(t, model.DreAreaAdministrative, got.DreArea)
	assert.Equal(t, int64(9), *got.BankAccountID)
	assert.Equal(t, model.Date(2024, 3, 20), got.DueDate, "human due date survives the sync")
}

func TestUpsert_InfersClassificationOnCreate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	engine := rules.NewEngine(st)
	svc := NewService(st, engine)

	require.NoError(t, engine.Learn(ctx, 1, model.PolarityPayable, "acme", rules.Classification{
		CategoryID: catptr(3),
		DreArea:    model.DreAreaOperational,
	}))

	rec, created, err := svc.Upsert(ctx, 1, "batch-a", providerTx("contaazul:evt-9", "88.00"))
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, rec.CategoryID)
	assert.Equal(t, int64(3), *rec.CategoryID)
	assert.Equal(t, model.DreAreaOperational, rec.DreArea)
}

func TestUpsert_NoRuleLeavesDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.New())

	rec, _, err := svc.Upsert(ctx, 1, "batch-a", providerTx("contaazul:evt-9", "88.00"))
	require.NoError(t, err)
	assert.Nil(t, rec.CategoryID)
	assert.Equal(t, model.DreAreaOther, rec.DreArea)
}

// racingStore injects a rival insert for the same correlation key right
// before the service's own insert, forcing the duplicate-key path.
type racingStore struct {
	store.Store
	raced bool
}

func (r *racingStore) CreateRecord(ctx context.Context, rec *model.LedgerRecord) error {
	if !r.raced && rec.CorrelationKey != nil {
		r.raced = true
		rival := *rec
		rival.Amount = dec("1.00")
		if err := r.Store.CreateRecord(ctx, &rival); err != nil {
			return err
		}
	}
	return r.Store.CreateRecord(ctx, rec)
}

func TestUpsert_DuplicateRaceRetriesAsUpdate(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	racing := &racingStore{Store: mem}
	svc := NewService(racing, rules.NewEngine(racing))

	rec, created, err := svc.Upsert(ctx, 1, "batch-a", providerTx("contaazul:evt-1", "150.00"))
	require.NoError(t, err, "losing the insert race must not surface")
	assert.False(t, created, "the losing writer reports an update")
	assert.True(t, rec.Amount.Equal(dec("150.00")), "retry refreshed the rival's row")

	rows, err := mem.FindOpenByAmount(ctx, 1, model.PolarityPayable, dec("150.00"), model.Date(2024, 3, 1), model.Date(2024, 3, 31))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "exactly one row per correlation key")
}

func TestReverse_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := newService(st)

	tx := providerTx("contaazul:evt-1", "150.00")
	tx.Settled = true
	settledOn := model.Date(2024, 3, 13)
	tx.SettlementDate = &settledOn

	orig, _, err := svc.Upsert(ctx, 1, "batch-a", tx)
	require.NoError(t, err)

	// Give the original a classification so inheritance is visible.
	orig.CategoryID = catptr(5)
	orig.DreArea = model.DreAreaFinancial
	orig.BankAccountID = catptr(2)
	require.NoError(t, st.UpdateRecord(ctx, orig))

	cleared, spawned, err := svc.Reverse(ctx, 1, orig.ID)
	require.NoError(t, err)

	assert.False(t, cleared.IsSettled)
	assert.Nil(t, cleared.SettlementDate)
	assert.Nil(t, cleared.CorrelationKey, "the key moves off the manual record")

	require.NotNil(t, spawned, "the observed external movement is re-homed")
	assert.Equal(t, "contaazul:evt-1", *spawned.CorrelationKey)
	assert.True(t, spawned.Amount.Equal(orig.Amount))
	assert.Equal(t, orig.Polarity, spawned.Polarity)
	assert.Equal(t, settledOn, spawned.DueDate, "spawned record is due when the money moved")
	assert.False(t, spawned.IsSettled)
	assert.Nil(t, spawned.CategoryID, "spawned record gets a generic category")
	assert.Equal(t, model.DreAreaFinancial, spawned.DreArea)
	assert.Equal(t, int64(2), *spawned.BankAccountID)

	// The next sync for that key updates the spawned record, no duplicate.
	again, created, err := svc.Upsert(ctx, 1, "batch-b", tx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, spawned.ID, again.ID)
}

func TestReverse_WithoutKeySpawnsNothing(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := newService(st)

	rec := model.LedgerRecord{
		UserID:           1,
		Polarity:         model.PolarityReceivable,
		CounterpartyName: "Client",
		Amount:           dec("300.00"),
		DueDate:          model.Date(2024, 2, 1),
		DreArea:          model.DreAreaOther,
	}
	rec.Settle(model.Date(2024, 2, 2))
	require.NoError(t, st.CreateRecord(ctx, &rec))

	cleared, spawned, err := svc.Reverse(ctx, 1, rec.ID)
	require.NoError(t, err)
	assert.False(t, cleared.IsSettled)
	assert.Nil(t, spawned)
}

func TestReverse_UnsettledIsNoop(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := newService(st)

	rec := model.LedgerRecord{
		UserID:           1,
		Polarity:         model.PolarityPayable,
		CounterpartyName: "Vendor",
		Amount:           dec("10.00"),
		DueDate:          model.Date(2024, 2, 1),
		DreArea:          model.DreAreaOther,
		CorrelationKey:   strptr("contaazul:evt-7"),
	}
	require.NoError(t, st.CreateRecord(ctx, &rec))

	got, spawned, err := svc.Reverse(ctx, 1, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, spawned)
	assert.Equal(t, rec, got, "record comes back unchanged")
}

func TestReverse_UnknownRecord(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.New())

	_, _, err := svc.Reverse(ctx, 1, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveManual_TrainsRuleEngine(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	engine := rules.NewEngine(st)
	svc := NewService(st, engine)

	rec := model.LedgerRecord{
		UserID:           1,
		Polarity:         model.PolarityPayable,
		CounterpartyName: "Acme Energy",
		Description:      "march bill",
		Amount:           dec("150.00"),
		DueDate:          model.Date(2024, 3, 10),
		CategoryID:       catptr(11),
		DreArea:          model.DreAreaOperational,
	}
	require.NoError(t, svc.SaveManual(ctx, &rec))
	assert.NotZero(t, rec.ID)

	cls, found, err := engine.Infer(ctx, 1, model.PolarityPayable, "payment ACME ENERGY co")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(11), *cls.CategoryID)

	// An exceptional reclassification is saved but does not retrain.
	rec.CategoryID = catptr(99)
	require.NoError(t, svc.SaveManual(ctx, &rec))

	cls, _, err = engine.Infer(ctx, 1, model.PolarityPayable, "acme energy")
	require.NoError(t, err)
	assert.Equal(t, int64(11), *cls.CategoryID)
}

func TestSaveManual_UnclassifiedDoesNotTrain(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := newService(st)

	rec := model.LedgerRecord{
		UserID:           1,
		Polarity:         model.PolarityPayable,
		CounterpartyName: "Acme Energy",
		Amount:           dec("150.00"),
		DueDate:          model.Date(2024, 3, 10),
		DreArea:          model.DreAreaOther,
	}
	require.NoError(t, svc.SaveManual(ctx, &rec))

	ruleset, err := st.ListRules(ctx, 1, model.PolarityPayable)
	require.NoError(t, err)
	assert.Empty(t, ruleset)
}

func TestSaveManual_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.New())

	err := svc.SaveManual(ctx, &model.LedgerRecord{UserID: 1, Polarity: "refund", Amount: dec("1.00")})
	assert.Error(t, err)

	err = svc.SaveManual(ctx, &model.LedgerRecord{UserID: 1, Polarity: model.PolarityPayable, Amount: dec("-1.00")})
	assert.Error(t, err)
}

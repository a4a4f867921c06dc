// Package ledger provides the business logic for merging canonical
// transactions into a user's ledger and for reversing settlements.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/rules"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

// Service provides ledger mutations. Bind it to a transactional store view
// when the mutation must commit atomically with its surroundings.
type Service struct {
	store store.Store
	rules *rules.Engine
}

// NewService creates a ledger Service.
func NewService(st store.Store, engine *rules.Engine) *Service {
	return &Service{store: st, rules: engine}
}

// Upsert merges one canonical transaction into the ledger, keyed on the
// correlation key when present. batchID is stamped on records the sync
// materializes; pass "" outside a sync run.
//
// Safe under at-least-once delivery: a second call with the same input is a
// no-op update, and a concurrent duplicate insert is caught via the store's
// unique index and retried as an update.
func (s *Service) Upsert(ctx context.Context, userID int64, batchID string, tx model.ExternalTransaction) (model.LedgerRecord, bool, error) {
	if tx.CorrelationKey != nil {
		rec, err := s.store.FindByCorrelationKey(ctx, userID, tx.Polarity, *tx.CorrelationKey)
		if err == nil {
			updated, uerr := s.refresh(ctx, rec, tx)
			return updated, false, uerr
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.LedgerRecord{}, false, err
		}
	}

	rec, err := s.create(ctx, userID, batchID, tx)
	if err == nil {
		return rec, true, nil
	}

	// Lost a duplicate-insert race: another writer created the record for
	// this correlation key first. Retry as an update, never surface.
	if errors.Is(err, store.ErrDuplicateKey) && tx.CorrelationKey != nil {
		existing, ferr := s.store.FindByCorrelationKey(ctx, userID, tx.Polarity, *tx.CorrelationKey)
		if ferr != nil {
			return model.LedgerRecord{}, false, ferr
		}
		updated, uerr := s.refresh(ctx, existing, tx)
		return updated, false, uerr
	}
	return model.LedgerRecord{}, false, err
}

// refresh is the update half of Upsert. Only financial and settlement state
// is touched: classification fields and a human-set due date survive later
// syncs, so a user correction is never reverted.
func (s *Service) refresh(ctx context.Context, rec model.LedgerRecord, tx model.ExternalTransaction) (model.LedgerRecord, error) {
	rec.Amount = tx.Amount
	if tx.Settled {
		settledOn := tx.OccurredOn
		if tx.SettlementDate != nil {
			settledOn = *tx.SettlementDate
		}
		rec.Settle(settledOn)
	} else {
		rec.Reopen()
	}

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return model.LedgerRecord{}, err
	}
	return rec, nil
}

// create is the creation half of Upsert: classify via the rule engine, then
// persist a new record carrying the transaction's correlation key.
func (s *Service) create(ctx context.Context, userID int64, batchID string, tx model.ExternalTransaction) (model.LedgerRecord, error) {
	cls, found, err := s.rules.Infer(ctx, userID, tx.Polarity, tx.Description)
	if err != nil {
		return model.LedgerRecord{}, err
	}

	rec := model.LedgerRecord{
		UserID:           userID,
		Polarity:         tx.Polarity,
		CounterpartyName: counterpartyOf(tx),
		Description:      tx.Description,
		Amount:           tx.Amount,
		DueDate:          tx.DueDate,
		DreArea:          model.DreAreaOther,
		CorrelationKey:   tx.CorrelationKey,
		SourceBatchID:    batchID,
	}
	if found {
		rec.CategoryID = cls.CategoryID
		rec.DreArea = cls.DreArea
		rec.BankAccountID = cls.BankAccountID
	}
	if tx.Settled {
		settledOn := tx.OccurredOn
		if tx.SettlementDate != nil {
			settledOn = *tx.SettlementDate
		}
		rec.Settle(settledOn)
	}

	if err := s.store.CreateRecord(ctx, &rec); err != nil {
		return model.LedgerRecord{}, err
	}
	return rec, nil
}

// Reverse undoes a settlement. The original record reopens with its
// correlation key cleared; if a key was present, a new open record is
// spawned carrying it, so the observed external movement is not lost and
// the next sync for that key updates instead of duplicating.
//
// Reversing a record that was never settled is a no-op, not an error.
func (s *Service) Reverse(ctx context.Context, userID, recordID int64) (model.LedgerRecord, *model.LedgerRecord, error) {
	rec, err := s.store.GetRecord(ctx, userID, recordID)
	if err != nil {
		return model.LedgerRecord{}, nil, err
	}
	if !rec.IsSettled {
		return rec, nil, nil
	}

	key := rec.CorrelationKey
	settledOn := rec.SettlementDate

	rec.Reopen()
	rec.CorrelationKey = nil
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return model.LedgerRecord{}, nil, err
	}

	if key == nil {
		return rec, nil, nil
	}

	dueDate := rec.DueDate
	if settledOn != nil {
		dueDate = *settledOn
	}
	spawned := model.LedgerRecord{
		UserID:           rec.UserID,
		Polarity:         rec.Polarity,
		CounterpartyName: rec.CounterpartyName,
		Description:      rec.Description,
		Amount:           rec.Amount,
		DueDate:          dueDate,
		DreArea:          rec.DreArea,
		BankAccountID:    rec.BankAccountID,
		CorrelationKey:   key,
	}
	if err := s.store.CreateRecord(ctx, &spawned); err != nil {
		return model.LedgerRecord{}, nil, fmt.Errorf("spawning record for correlation key %q: %w", *key, err)
	}
	return rec, &spawned, nil
}

// SaveManual persists a user-entered or user-edited record and feeds the
// rule engine with the record's own name and classification. Manual saves
// are the single source of training data.
func (s *Service) SaveManual(ctx context.Context, rec *model.LedgerRecord) error {
	if !rec.Polarity.Valid() {
		return fmt.Errorf("invalid polarity %q", rec.Polarity)
	}
	if !rec.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", rec.Amount)
	}

	if rec.ID == 0 {
		if err := s.store.CreateRecord(ctx, rec); err != nil {
			return err
		}
	} else if err := s.store.UpdateRecord(ctx, *rec); err != nil {
		return err
	}

	// Only classified records teach the engine anything.
	if rec.CategoryID == nil {
		return nil
	}
	return s.rules.Learn(ctx, rec.UserID, rec.Polarity, rec.CounterpartyName, rules.Classification{
		CategoryID:    rec.CategoryID,
		DreArea:       rec.DreArea,
		BankAccountID: rec.BankAccountID,
	})
}

func counterpartyOf(tx model.ExternalTransaction) string {
	if tx.CounterpartyName != "" {
		return tx.CounterpartyName
	}
	return tx.Description
}

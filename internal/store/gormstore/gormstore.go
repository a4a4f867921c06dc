// Package gormstore is the Postgres-backed Store.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // postgres driver
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

// Store wraps a gorm connection (or an open transaction).
type Store struct {
	db   *gorm.DB
	inTx bool
}

// Open connects to Postgres and migrates the schema.
func Open(uri string) (*Store, error) {
	db, err := gorm.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&ledgerRecordRow{}, &classificationRuleRow{}).Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTransaction runs fn inside a database transaction. Nested calls join
// the open transaction instead of starting a second one.
func (s *Store) InTransaction(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return translate(tx.Error)
	}

	if err := fn(&Store{db: tx, inTx: true}); err != nil {
		tx.Rollback()
		return err
	}
	return translate(tx.Commit().Error)
}

func (s *Store) GetRecord(ctx context.Context, userID, recordID int64) (model.LedgerRecord, error) {
	var row ledgerRecordRow
	err := s.db.Where("id = ? AND user_id = ?", recordID, userID).First(&row).Error
	if err != nil {
		return model.LedgerRecord{}, translate(err)
	}
	return fromRecordRow(row), nil
}

func (s *Store) FindByCorrelationKey(ctx context.Context, userID int64, polarity model.Polarity, key string) (model.LedgerRecord, error) {
	var row ledgerRecordRow
	err := s.db.
		Where("user_id = ? AND polarity = ? AND correlation_key = ?", userID, string(polarity), key).
		First(&row).Error
	if err != nil {
		return model.LedgerRecord{}, translate(err)
	}
	return fromRecordRow(row), nil
}

func (s *Store) FindOpenByAmount(ctx context.Context, userID int64, polarity model.Polarity, amount decimal.Decimal, from, to time.Time) ([]model.LedgerRecord, error) {
	var rows []ledgerRecordRow
	err := s.db.
		Where("user_id = ? AND polarity = ? AND is_settled = ? AND amount = ? AND due_date BETWEEN ? AND ?",
			userID, string(polarity), false, amount, from, to).
		Order("due_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	out := make([]model.LedgerRecord, len(rows))
	for i, row := range rows {
		out[i] = fromRecordRow(row)
	}
	return out, nil
}

func (s *Store) CreateRecord(ctx context.Context, rec *model.LedgerRecord) error {
	row := toRecordRow(*rec)
	row.ID = 0
	if err := s.db.Create(&row).Error; err != nil {
		return translate(err)
	}
	rec.ID = row.ID
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, rec model.LedgerRecord) error {
	row := toRecordRow(rec)
	res := s.db.Model(&ledgerRecordRow{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
		"counterparty_name": row.CounterpartyName,
		"description":       row.Description,
		"amount":            row.Amount,
		"due_date":          row.DueDate,
		"settlement_date":   row.SettlementDate,
		"is_settled":        row.IsSettled,
		"category_id":       row.CategoryID,
		"dre_area":          row.DreArea,
		"bank_account_id":   row.BankAccountID,
		"correlation_key":   row.CorrelationKey,
		"source_batch_id":   row.SourceBatchID,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SettleIfOpen is the optimistic settle used by the fuzzy matcher: the
// is_settled re-check happens in the WHERE clause, so two matches racing for
// the same candidate resolve at the row level without a held lock.
func (s *Store) SettleIfOpen(ctx context.Context, userID, recordID int64, settledOn time.Time, correlationKey *string) (bool, error) {
	res := s.db.Model(&ledgerRecordRow{}).
		Where("id = ? AND user_id = ? AND is_settled = ?", recordID, userID, false).
		Updates(map[string]interface{}{
			"is_settled":      true,
			"settlement_date": model.DateOf(settledOn),
			"correlation_key": correlationKey,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ListRules(ctx context.Context, userID int64, polarity model.Polarity) ([]model.ClassificationRule, error) {
	var rows []classificationRuleRow
	err := s.db.
		Where("user_id = ? AND polarity = ?", userID, string(polarity)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	out := make([]model.ClassificationRule, len(rows))
	for i, row := range rows {
		out[i] = fromRuleRow(row)
	}
	return out, nil
}

func (s *Store) CreateRule(ctx context.Context, rule *model.ClassificationRule) error {
	rule.MatchTerm = strings.ToLower(rule.MatchTerm)
	row := toRuleRow(*rule)
	row.ID = 0
	if err := s.db.Create(&row).Error; err != nil {
		return translate(err)
	}
	rule.ID = row.ID
	return nil
}

// uniqueViolation is the Postgres error code for a unique index violation.
const uniqueViolation = "23505"

// translate maps driver errors onto the store sentinels. Anything that is
// neither a missing row nor a unique violation is treated as the store being
// unavailable, which aborts the current batch.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if gorm.IsRecordNotFoundError(err) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return store.ErrDuplicateKey
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

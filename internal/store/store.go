// Package store defines the persistence contract the reconciliation core
// depends on. The two unique indexes — (user, polarity, correlation_key) on
// ledger records and (user, polarity, lower(match_term)) on rules — are the
// only schema-level invariants the core requires from an implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersync-dev/ledgersync/internal/model"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateKey is returned when an insert violates one of the
	// unique indexes. Writers recover by retrying as an update.
	ErrDuplicateKey = errors.New("store: duplicate key")

	// ErrUnavailable means the store cannot be reached. Fatal for the
	// current batch; already-committed items stand.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the ledger persistence contract.
//
// Candidate ordering from FindOpenByAmount is part of the contract: earliest
// due date first, then lowest id, so the fuzzy matcher's tie-break is
// deterministic.
type Store interface {
	// InTransaction runs fn against a transactional view. If fn returns an
	// error nothing fn wrote is kept. Nested calls join the outer unit.
	InTransaction(ctx context.Context, fn func(Store) error) error

	GetRecord(ctx context.Context, userID, recordID int64) (model.LedgerRecord, error)
	FindByCorrelationKey(ctx context.Context, userID int64, polarity model.Polarity, key string) (model.LedgerRecord, error)
	FindOpenByAmount(ctx context.Context, userID int64, polarity model.Polarity, amount decimal.Decimal, from, to time.Time) ([]model.LedgerRecord, error)
	CreateRecord(ctx context.Context, rec *model.LedgerRecord) error
	UpdateRecord(ctx context.Context, rec model.LedgerRecord) error

	// SettleIfOpen settles the record only if it is still open, and then
	// also stamps the correlation key. Returns false when another writer
	// settled it first.
	SettleIfOpen(ctx context.Context, userID, recordID int64, settledOn time.Time, correlationKey *string) (bool, error)

	// ListRules returns the user's rules for one polarity in creation order.
	ListRules(ctx context.Context, userID int64, polarity model.Polarity) ([]model.ClassificationRule, error)
	CreateRule(ctx context.Context, rule *model.ClassificationRule) error
}

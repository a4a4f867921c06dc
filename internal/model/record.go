package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Polarity says which way money moves for a ledger record.
type Polarity string

const (
	PolarityPayable    Polarity = "payable"
	PolarityReceivable Polarity = "receivable"
)

// Valid reports whether p is a known polarity.
func (p Polarity) Valid() bool {
	return p == PolarityPayable || p == PolarityReceivable
}

// DreArea is the income-statement rollup bucket. The core treats it as opaque.
type DreArea string

const (
	DreAreaOperational    DreArea = "operational"
	DreAreaAdministrative DreArea = "administrative"
	DreAreaFinancial      DreArea = "financial"
	DreAreaOther          DreArea = "other"
)

// LedgerRecord is a payable or receivable entry in a user's ledger.
//
// CorrelationKey, when set, is the durable external identity of the money
// movement and is unique per (user, polarity). It is the idempotency anchor
// for the sync pipeline.
type LedgerRecord struct {
	ID               int64
	UserID           int64
	Polarity         Polarity
	CounterpartyName string
	Description      string
	Amount           decimal.Decimal // positive magnitude
	DueDate          time.Time       // date-only
	SettlementDate   *time.Time      // nil while open
	IsSettled        bool
	CategoryID       *int64
	DreArea          DreArea
	BankAccountID    *int64
	CorrelationKey   *string
	SourceBatchID    string // set only when materialized by a sync batch
}

// Settle marks the record settled on the given date.
// IsSettled and SettlementDate always change together.
func (r *LedgerRecord) Settle(on time.Time) {
	d := DateOf(on)
	r.SettlementDate = &d
	r.IsSettled = true
}

// Reopen clears the settled state. The correlation key is left alone;
// reversal handles re-homing it.
func (r *LedgerRecord) Reopen() {
	r.SettlementDate = nil
	r.IsSettled = false
}

// Open reports whether the record is still awaiting settlement.
func (r LedgerRecord) Open() bool {
	return !r.IsSettled
}

// DateOf truncates t to a calendar date in UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a date-only time, the form all ledger dates use.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalTransaction is the canonical form of one provider transaction.
// It is produced fresh per sync run and never persisted as its own entity;
// only the correlation key it carries survives, on the ledger record.
type ExternalTransaction struct {
	CorrelationKey   *string
	Polarity         Polarity
	Amount           decimal.Decimal // positive magnitude, direction lives in Polarity
	Description      string
	CounterpartyName string
	OccurredOn       time.Time // the date money moved (date-only)
	DueDate          time.Time
	Settled          bool
	SettlementDate   *time.Time

	// SettlementDateInferred is set when the provider said "settled" without
	// a date and the sync run's date was substituted. Downstream logging only.
	SettlementDateInferred bool

	// FingerprintKey is set when CorrelationKey is a locally-derived
	// statement-line fingerprint rather than a durable provider id. Such
	// transactions go through the fuzzy matcher before plain creation.
	FingerprintKey bool

	ProviderTag string
}

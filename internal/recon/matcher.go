// Package recon drives a sync batch: normalize, match, upsert, one atomic
// store unit per transaction.
package recon

import (
	"context"

	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

// DefaultWindowDays is the due-date tolerance around the transaction's
// occurred date. The window absorbs clock and batching skew between bank
// posting and user-entered due dates; the amount itself is matched exactly,
// with no tolerance, to avoid merging unrelated records.
const DefaultWindowDays = 3

// Matcher finds an open manual record for a transaction that lacks a strong
// correlation key.
type Matcher struct {
	windowDays int
}

// NewMatcher creates a Matcher. windowDays <= 0 selects the default window.
func NewMatcher(windowDays int) *Matcher {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Matcher{windowDays: windowDays}
}

// Match searches open records of the same user, polarity and exact amount
// with a due date inside the window, and settles the best candidate:
// earliest due date first, then lowest id. Settling re-checks that the
// candidate is still open at write time, so two racing matches resolve by
// moving on to the next candidate rather than double-settling.
//
// Finding nothing is a normal outcome, not an error; the caller falls
// through to record creation.
func (m *Matcher) Match(ctx context.Context, st store.Store, userID int64, tx model.ExternalTransaction) (model.LedgerRecord, bool, error) {
	occurred := model.DateOf(tx.OccurredOn)
	from := occurred.AddDate(0, 0, -m.windowDays)
	to := occurred.AddDate(0, 0, m.windowDays)

	candidates, err := st.FindOpenByAmount(ctx, userID, tx.Polarity, tx.Amount, from, to)
	if err != nil {
		return model.LedgerRecord{}, false, err
	}

	for _, candidate := range candidates {
		settled, err := st.SettleIfOpen(ctx, userID, candidate.ID, occurred, tx.CorrelationKey)
		if err != nil {
			return model.LedgerRecord{}, false, err
		}
		if !settled {
			continue // lost the race for this candidate
		}
		candidate.Settle(occurred)
		candidate.CorrelationKey = tx.CorrelationKey
		return candidate, true, nil
	}
	return model.LedgerRecord{}, false, nil
}

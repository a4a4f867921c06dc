// Package normalize turns provider-specific transaction payloads into the
// canonical ExternalTransaction. One decoder per provider tag; a payload that
// cannot resolve to an amount, a date and a direction fails alone without
// aborting the rest of the batch.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ledgersync-dev/ledgersync/internal/model"
)

// Error is a terminal normalization failure for a single payload. It keeps
// the raw description and amount so the batch report can point a human at
// the offending source data.
type Error struct {
	Provider       string
	Reason         string
	RawDescription string
	RawAmount      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s: %s (description=%q amount=%q)", e.Provider, e.Reason, e.RawDescription, e.RawAmount)
}

// Decoder converts one provider's raw payload into a canonical transaction.
type Decoder interface {
	Tag() string
	Decode(raw json.RawMessage) (model.ExternalTransaction, error)
}

// SettledDatePolicy controls what happens when a provider marks a
// transaction settled but omits the settlement date.
type SettledDatePolicy string

const (
	// SettledDateSyncDate substitutes the sync run's date and flags the
	// transaction as inferred.
	SettledDateSyncDate SettledDatePolicy = "sync_date"
	// SettledDateReject fails the payload instead.
	SettledDateReject SettledDatePolicy = "reject"
)

// Registry holds named decoders. Mirrors one decoder per provider tag.
type Registry struct {
	decoders map[string]Decoder
	policy   SettledDatePolicy
}

// NewRegistry creates an empty registry with the given settled-date policy.
func NewRegistry(policy SettledDatePolicy) *Registry {
	if policy == "" {
		policy = SettledDateSyncDate
	}
	return &Registry{decoders: make(map[string]Decoder), policy: policy}
}

// DefaultRegistry returns a registry with all built-in decoders.
func DefaultRegistry(policy SettledDatePolicy) *Registry {
	r := NewRegistry(policy)
	r.Register(&ContaAzulDecoder{})
	r.Register(&OFXDecoder{})
	return r
}

// Register adds a decoder. Panics on duplicate tag.
func (r *Registry) Register(d Decoder) {
	key := strings.ToLower(d.Tag())
	if _, ok := r.decoders[key]; ok {
		panic("duplicate decoder tag: " + key)
	}
	r.decoders[key] = d
}

// Decode normalizes one payload. syncDate is the sync run's date, used only
// when the settled-date policy substitutes it.
func (r *Registry) Decode(tag string, raw json.RawMessage, syncDate time.Time) (model.ExternalTransaction, error) {
	d, ok := r.decoders[strings.ToLower(tag)]
	if !ok {
		return model.ExternalTransaction{}, fmt.Errorf("unknown provider %q", tag)
	}

	tx, err := d.Decode(raw)
	if err != nil {
		return model.ExternalTransaction{}, err
	}

	if tx.Settled && tx.SettlementDate == nil {
		if r.policy == SettledDateReject {
			return model.ExternalTransaction{}, &Error{
				Provider:       tag,
				Reason:         "settled transaction has no settlement date",
				RawDescription: tx.Description,
				RawAmount:      tx.Amount.String(),
			}
		}
		d := model.DateOf(syncDate)
		tx.SettlementDate = &d
		tx.SettlementDateInferred = true
	}

	return tx, nil
}

// rawNumber holds a monetary field as sent, whether the provider encodes it
// as a JSON number or a string. Validation happens at decimal-parse time so
// a bad value fails with the raw text preserved for the batch report.
type rawNumber string

func (n *rawNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*n = rawNumber(s)
	return nil
}

func (n rawNumber) String() string { return string(n) }

// parseDate tries each layout in order and truncates to a calendar date.
func parseDate(value string, layouts ...string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return model.DateOf(t), true
		}
	}
	return time.Time{}, false
}

// sanitizePrefix keeps only alphanumerics of s, capped at n runes. Used in
// statement-line fingerprints.
func sanitizePrefix(s string, n int) string {
	kept := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(kept) > n {
		kept = kept[:n]
	}
	return strings.ToUpper(kept)
}

package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersync-dev/ledgersync/internal/model"
)

// OFXDecoder decodes bank-statement lines extracted from OFX files. A
// statement line has no durable provider id, so the correlation key is a
// locally-derived fingerprint and the transaction is routed through the
// fuzzy matcher before plain creation.
type OFXDecoder struct{}

const ofxTag = "ofx"

type ofxPayload struct {
	PostedOn    string    `json:"posted_on"`
	Amount      rawNumber `json:"amount"` // signed: negative = money out
	Description string    `json:"description"`
	Memo        string    `json:"memo"`
}

// Tag returns the decoder name.
func (d *OFXDecoder) Tag() string { return ofxTag }

// Decode maps one statement line to a canonical transaction. Statement
// lines always represent money that already moved, so the result is settled
// from the start with the posting date as settlement date.
func (d *OFXDecoder) Decode(raw json.RawMessage) (model.ExternalTransaction, error) {
	var p ofxPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.ExternalTransaction{}, &Error{
			Provider: ofxTag,
			Reason:   fmt.Sprintf("malformed payload: %v", err),
		}
	}

	fail := func(reason string) (model.ExternalTransaction, error) {
		return model.ExternalTransaction{}, &Error{
			Provider:       ofxTag,
			Reason:         reason,
			RawDescription: p.Description,
			RawAmount:      p.Amount.String(),
		}
	}

	signed, err := decimal.NewFromString(p.Amount.String())
	if err != nil {
		return fail("missing or unparseable amount")
	}
	if signed.IsZero() {
		return fail("zero amount carries no direction")
	}

	postedOn, ok := parseDate(p.PostedOn, "20060102", "2006-01-02")
	if !ok {
		return fail(fmt.Sprintf("unparseable posting date %q", p.PostedOn))
	}

	polarity := model.PolarityReceivable
	if signed.IsNegative() {
		polarity = model.PolarityPayable
	}
	amount := signed.Abs()

	description := p.Description
	if description == "" {
		description = p.Memo
	}

	key := ofxFingerprint(postedOn, amount, description)
	settledOn := postedOn

	return model.ExternalTransaction{
		CorrelationKey:   &key,
		FingerprintKey:   true,
		Polarity:         polarity,
		Amount:           amount,
		Description:      description,
		CounterpartyName: description,
		OccurredOn:       postedOn,
		DueDate:          postedOn,
		Settled:          true,
		SettlementDate:   &settledOn,
		ProviderTag:      ofxTag,
	}, nil
}

// ofxFingerprint builds a statement-line identity like
// ofx_20240312_150.00_ACMEENERGY. Locally unique within a statement; not a
// durable provider id.
func ofxFingerprint(postedOn time.Time, amount decimal.Decimal, description string) string {
	return fmt.Sprintf("%s_%s_%s_%s", ofxTag, postedOn.Format("20060102"), amount.StringFixed(2), sanitizePrefix(description, 10))
}

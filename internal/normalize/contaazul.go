package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersync-dev/ledgersync/internal/model"
)

// ContaAzulDecoder decodes financial events from the ContaAzul bookkeeping
// API. These payloads carry a durable record id, so the correlation key is
// strong and the fuzzy matcher is skipped.
type ContaAzulDecoder struct{}

const contaAzulTag = "contaazul"

type contaAzulPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // EXPENSE or REVENUE
	Description string `json:"description"`
	Negotiator  struct {
		Name string `json:"name"`
	} `json:"negotiator"`
	Value           rawNumber `json:"value"`
	DueDate         string    `json:"due_date"`
	Status          string    `json:"status"` // PENDING or ACQUITTED
	AcquittanceDate string    `json:"acquittance_date"`
}

// Tag returns the decoder name.
func (d *ContaAzulDecoder) Tag() string { return contaAzulTag }

// Decode maps one financial event to a canonical transaction.
func (d *ContaAzulDecoder) Decode(raw json.RawMessage) (model.ExternalTransaction, error) {
	var p contaAzulPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.ExternalTransaction{}, &Error{
			Provider: contaAzulTag,
			Reason:   fmt.Sprintf("malformed payload: %v", err),
		}
	}

	fail := func(reason string) (model.ExternalTransaction, error) {
		return model.ExternalTransaction{}, &Error{
			Provider:       contaAzulTag,
			Reason:         reason,
			RawDescription: p.Description,
			RawAmount:      p.Value.String(),
		}
	}

	polarity, ok := contaAzulPolarity(p.Type)
	if !ok {
		return fail(fmt.Sprintf("unknown event type %q", p.Type))
	}

	amount, err := decimal.NewFromString(p.Value.String())
	if err != nil || !amount.IsPositive() {
		return fail("missing or non-positive amount")
	}

	dueDate, ok := parseDate(p.DueDate, "2006-01-02", time.RFC3339)
	if !ok {
		return fail(fmt.Sprintf("unparseable due date %q", p.DueDate))
	}

	tx := model.ExternalTransaction{
		Polarity:         polarity,
		Amount:           amount,
		Description:      p.Description,
		CounterpartyName: p.Negotiator.Name,
		DueDate:          dueDate,
		OccurredOn:       dueDate,
		ProviderTag:      contaAzulTag,
	}

	if p.ID != "" {
		key := contaAzulTag + ":" + p.ID
		tx.CorrelationKey = &key
	}

	if p.Status == "ACQUITTED" {
		tx.Settled = true
		if settledOn, ok := parseDate(p.AcquittanceDate, "2006-01-02", time.RFC3339); ok {
			tx.SettlementDate = &settledOn
			tx.OccurredOn = settledOn
		}
		// A missing acquittance date is left for the registry's
		// settled-date policy to resolve.
	}

	return tx, nil
}

func contaAzulPolarity(eventType string) (model.Polarity, bool) {
	switch eventType {
	case "EXPENSE":
		return model.PolarityPayable, true
	case "REVENUE":
		return model.PolarityReceivable, true
	default:
		return "", false
	}
}

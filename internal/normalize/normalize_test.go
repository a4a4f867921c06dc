package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := DefaultRegistry(SettledDateSyncDate)

	_, err := r.Decode("pix", json.RawMessage(`{}`), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "pix"`)
}

func TestRegistry_DuplicateTagPanics(t *testing.T) {
	r := NewRegistry(SettledDateSyncDate)
	r.Register(&OFXDecoder{})
	assert.Panics(t, func() { r.Register(&OFXDecoder{}) })
}

func TestRegistry_SettledWithoutDate_SyncDatePolicy(t *testing.T) {
	r := DefaultRegistry(SettledDateSyncDate)
	raw := json.RawMessage(`{
		"id": "evt-5",
		"type": "EXPENSE",
		"description": "Card fee",
		"value": 12.00,
		"due_date": "2024-04-01",
		"status": "ACQUITTED"
	}`)

	syncDate := time.Date(2024, 4, 9, 11, 30, 0, 0, time.UTC)
	tx, err := r.Decode("contaazul", raw, syncDate)
	require.NoError(t, err)

	assert.True(t, tx.Settled)
	require.NotNil(t, tx.SettlementDate)
	assert.Equal(t, date(2024, 4, 9), *tx.SettlementDate)
	assert.True(t, tx.SettlementDateInferred)
	assert.Equal(t, date(2024, 4, 1), tx.DueDate, "inferred settlement never touches the due date")
}

func TestRegistry_SettledWithoutDate_RejectPolicy(t *testing.T) {
	r := DefaultRegistry(SettledDateReject)
	raw := json.RawMessage(`{
		"id": "evt-5",
		"type": "EXPENSE",
		"description": "Card fee",
		"value": 12.00,
		"due_date": "2024-04-01",
		"status": "ACQUITTED"
	}`)

	_, err := r.Decode("contaazul", raw, time.Now())
	var nerr *Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "Card fee", nerr.RawDescription)
	assert.Equal(t, "12", nerr.RawAmount)
}

func TestRegistry_TagLookupIsCaseInsensitive(t *testing.T) {
	r := DefaultRegistry(SettledDateSyncDate)
	raw := json.RawMessage(`{"posted_on":"20240312","amount":-10.00,"description":"X"}`)

	_, err := r.Decode("OFX", raw, time.Now())
	assert.NoError(t, err)
}

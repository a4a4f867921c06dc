package statement

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersync-dev/ledgersync/internal/recon"
)

// BankCSVParser parses generic three-column bank exports: date,
// description, signed amount, with a header row.
type BankCSVParser struct{}

const (
	csvNumFields = 3
	csvColDate   = 0
	csvColDesc   = 1
	csvColAmount = 2
)

var csvDateFormats = []string{"2006-01-02", "02/01/2006"}

// Format returns the parser name.
func (p *BankCSVParser) Format() string { return "csv" }

// Parse reads a bank CSV and returns one sync item per row. Items carry
// statement-line payloads; the sync pipeline normalizes them.
func (p *BankCSVParser) Parse(r io.Reader) ([]recon.Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = csvNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading bank CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var items []recon.Item
	for i, rec := range records[1:] {
		item, err := parseCSVRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// statementPayload is the raw statement-line shape the normalization
// layer expects for statement providers.
type statementPayload struct {
	PostedOn    string `json:"posted_on"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func parseCSVRow(rec []string) (recon.Item, error) {
	var date time.Time
	var err error
	for _, layout := range csvDateFormats {
		date, err = time.Parse(layout, rec[csvColDate])
		if err == nil {
			break
		}
	}
	if err != nil {
		return recon.Item{}, fmt.Errorf("parsing date %q: %w", rec[csvColDate], err)
	}

	amount, err := decimal.NewFromString(rec[csvColAmount])
	if err != nil {
		return recon.Item{}, fmt.Errorf("parsing amount %q: %w", rec[csvColAmount], err)
	}

	payload, err := json.Marshal(statementPayload{
		PostedOn:    date.Format("2006-01-02"),
		Amount:      amount.String(),
		Description: rec[csvColDesc],
	})
	if err != nil {
		return recon.Item{}, err
	}
	return recon.Item{Provider: "ofx", Payload: payload}, nil
}

package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersync-dev/ledgersync/internal/model"
)

// ledgerRecordRow is the ledger_records table. The composite unique index on
// (user_id, polarity, correlation_key) is the idempotency anchor; Postgres
// permits any number of NULL keys, which matches the invariant of uniqueness
// only when the key is present.
type ledgerRecordRow struct {
	ID               int64           `gorm:"primary_key;auto_increment"`
	UserID           int64           `gorm:"not null;unique_index:uix_ledger_identity"`
	Polarity         string          `gorm:"size:16;not null;unique_index:uix_ledger_identity"`
	CorrelationKey   *string         `gorm:"size:191;unique_index:uix_ledger_identity"`
	CounterpartyName string          `gorm:"size:191;not null"`
	Description      string          `gorm:"type:text;not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	DueDate          time.Time       `gorm:"type:date;not null"`
	SettlementDate   *time.Time      `gorm:"type:date"`
	IsSettled        bool            `gorm:"not null"`
	CategoryID       *int64
	DreArea          string `gorm:"size:32;not null"`
	BankAccountID    *int64
	SourceBatchID    string `gorm:"size:64;not null"`
}

func (ledgerRecordRow) TableName() string { return "ledger_records" }

// classificationRuleRow is the classification_rules table. MatchTerm is
// stored lowercased so the unique index doubles as the case-insensitive
// (user_id, polarity, lower(match_term)) constraint.
type classificationRuleRow struct {
	ID            int64  `gorm:"primary_key;auto_increment"`
	UserID        int64  `gorm:"not null;unique_index:uix_rule_identity"`
	Polarity      string `gorm:"size:16;not null;unique_index:uix_rule_identity"`
	MatchTerm     string `gorm:"size:191;not null;unique_index:uix_rule_identity"`
	CategoryID    *int64
	DreArea       string `gorm:"size:32;not null"`
	BankAccountID *int64
}

func (classificationRuleRow) TableName() string { return "classification_rules" }

func toRecordRow(rec model.LedgerRecord) ledgerRecordRow {
	return ledgerRecordRow{
		ID:               rec.ID,
		UserID:           rec.UserID,
		Polarity:         string(rec.Polarity),
		CorrelationKey:   rec.CorrelationKey,
		CounterpartyName: rec.CounterpartyName,
		Description:      rec.Description,
		Amount:           rec.Amount,
		DueDate:          rec.DueDate,
		SettlementDate:   rec.SettlementDate,
		IsSettled:        rec.IsSettled,
		CategoryID:       rec.CategoryID,
		DreArea:          string(rec.DreArea),
		BankAccountID:    rec.BankAccountID,
		SourceBatchID:    rec.SourceBatchID,
	}
}

func fromRecordRow(row ledgerRecordRow) model.LedgerRecord {
	return model.LedgerRecord{
		ID:               row.ID,
		UserID:           row.UserID,
		Polarity:         model.Polarity(row.Polarity),
		CorrelationKey:   row.CorrelationKey,
		CounterpartyName: row.CounterpartyName,
		Description:      row.Description,
		Amount:           row.Amount,
		DueDate:          row.DueDate,
		SettlementDate:   row.SettlementDate,
		IsSettled:        row.IsSettled,
		CategoryID:       row.CategoryID,
		DreArea:          model.DreArea(row.DreArea),
		BankAccountID:    row.BankAccountID,
		SourceBatchID:    row.SourceBatchID,
	}
}

func toRuleRow(rule model.ClassificationRule) classificationRuleRow {
	return classificationRuleRow{
		ID:            rule.ID,
		UserID:        rule.UserID,
		Polarity:      string(rule.Polarity),
		MatchTerm:     rule.MatchTerm,
		CategoryID:    rule.CategoryID,
		DreArea:       string(rule.DreArea),
		BankAccountID: rule.BankAccountID,
	}
}

func fromRuleRow(row classificationRuleRow) model.ClassificationRule {
	return model.ClassificationRule{
		ID:            row.ID,
		UserID:        row.UserID,
		Polarity:      model.Polarity(row.Polarity),
		MatchTerm:     row.MatchTerm,
		CategoryID:    row.CategoryID,
		DreArea:       model.DreArea(row.DreArea),
		BankAccountID: row.BankAccountID,
	}
}

package model

// ClassificationRule maps a counterparty substring to default classification
// fields for future transactions. Rules are first-write-wins: one exceptional
// manual reclassification must not rewrite the learned rule for every future
// transaction from the same counterparty.
type ClassificationRule struct {
	ID            int64
	UserID        int64
	Polarity      Polarity
	MatchTerm     string // stored lowercased; matched as substring of description
	CategoryID    *int64
	DreArea       DreArea
	BankAccountID *int64
}

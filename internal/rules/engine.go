// Package rules is the learned classification engine: case-insensitive
// substring rules mapping counterparty terms to default classification
// fields. First match wins on read, first write wins on learn.
package rules

import (
	"context"
	"errors"
	"strings"

	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

// Classification is the set of defaults a rule provides.
type Classification struct {
	CategoryID    *int64
	DreArea       model.DreArea
	BankAccountID *int64
}

// Engine queries and learns classification rules against a store.
type Engine struct {
	store store.Store
}

// NewEngine creates an Engine bound to a store (or transactional view).
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Infer returns the defaults of the first rule whose term is a
// case-insensitive substring of description. Rules are evaluated in creation
// order, oldest first: deliberately first-match, not best-match, so the
// outcome stays predictable and auditable.
func (e *Engine) Infer(ctx context.Context, userID int64, polarity model.Polarity, description string) (Classification, bool, error) {
	ruleset, err := e.store.ListRules(ctx, userID, polarity)
	if err != nil {
		return Classification{}, false, err
	}

	haystack := strings.ToLower(description)
	for _, rule := range ruleset {
		if rule.MatchTerm == "" {
			continue
		}
		if strings.Contains(haystack, rule.MatchTerm) {
			return Classification{
				CategoryID:    rule.CategoryID,
				DreArea:       rule.DreArea,
				BankAccountID: rule.BankAccountID,
			}, true, nil
		}
	}
	return Classification{}, false, nil
}

// Learn records a rule keyed on the lowercased counterparty name, only if no
// rule for that term exists yet. An existing rule is never updated: one
// exceptional manual reclassification must not silently rewrite the learned
// rule for every future transaction from the same counterparty.
func (e *Engine) Learn(ctx context.Context, userID int64, polarity model.Polarity, counterpartyName string, cls Classification) error {
	term := strings.ToLower(strings.TrimSpace(counterpartyName))
	if term == "" {
		return nil
	}

	rule := model.ClassificationRule{
		UserID:        userID,
		Polarity:      polarity,
		MatchTerm:     term,
		CategoryID:    cls.CategoryID,
		DreArea:       cls.DreArea,
		BankAccountID: cls.BankAccountID,
	}
	err := e.store.CreateRule(ctx, &rule)
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil // first write wins
	}
	return err
}

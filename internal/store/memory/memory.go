// Package memory is an in-memory Store used by tests and local mode. It
// enforces the same unique indexes as the SQL store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

// Memory holds all state behind a single mutex. A transaction takes the
// mutex for its whole unit of work, which gives the same serialization the
// SQL store gets from its unique indexes and row-level updates.
type Memory struct {
	mu sync.Mutex
	st *state
}

type state struct {
	records      map[int64]model.LedgerRecord
	rules        []model.ClassificationRule
	nextRecordID int64
	nextRuleID   int64
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{st: newState()}
}

func newState() *state {
	return &state{records: make(map[int64]model.LedgerRecord), nextRecordID: 1, nextRuleID: 1}
}

func (s *state) clone() *state {
	cp := &state{
		records:      make(map[int64]model.LedgerRecord, len(s.records)),
		rules:        append([]model.ClassificationRule(nil), s.rules...),
		nextRecordID: s.nextRecordID,
		nextRuleID:   s.nextRuleID,
	}
	for id, rec := range s.records {
		cp.records[id] = rec
	}
	return cp
}

// InTransaction snapshots state, runs fn against an unlocked view, and
// restores the snapshot if fn fails.
func (m *Memory) InTransaction(ctx context.Context, fn func(store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Memory) GetRecord(ctx context.Context, userID, recordID int64) (model.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getRecord(userID, recordID)
}

func (m *Memory) FindByCorrelationKey(ctx context.Context, userID int64, polarity model.Polarity, key string) (model.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.findByCorrelationKey(userID, polarity, key)
}

func (m *Memory) FindOpenByAmount(ctx context.Context, userID int64, polarity model.Polarity, amount decimal.Decimal, from, to time.Time) ([]model.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.findOpenByAmount(userID, polarity, amount, from, to)
}

func (m *Memory) CreateRecord(ctx context.Context, rec *model.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createRecord(rec)
}

func (m *Memory) UpdateRecord(ctx context.Context, rec model.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateRecord(rec)
}

func (m *Memory) SettleIfOpen(ctx context.Context, userID, recordID int64, settledOn time.Time, correlationKey *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.settleIfOpen(userID, recordID, settledOn, correlationKey)
}

func (m *Memory) ListRules(ctx context.Context, userID int64, polarity model.Polarity) ([]model.ClassificationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listRules(userID, polarity)
}

func (m *Memory) CreateRule(ctx context.Context, rule *model.ClassificationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createRule(rule)
}

// txView is the view handed to InTransaction callbacks. The outer call
// already holds the mutex, so it delegates without locking. Its own
// InTransaction joins the outer unit.
type txView struct {
	st *state
}

func (t *txView) InTransaction(ctx context.Context, fn func(store.Store) error) error {
	return fn(t)
}

func (t *txView) GetRecord(ctx context.Context, userID, recordID int64) (model.LedgerRecord, error) {
	return t.st.getRecord(userID, recordID)
}

func (t *txView) FindByCorrelationKey(ctx context.Context, userID int64, polarity model.Polarity, key string) (model.LedgerRecord, error) {
	return t.st.findByCorrelationKey(userID, polarity, key)
}

func (t *txView) FindOpenByAmount(ctx context.Context, userID int64, polarity model.Polarity, amount decimal.Decimal, from, to time.Time) ([]model.LedgerRecord, error) {
	return t.st.findOpenByAmount(userID, polarity, amount, from, to)
}

func (t *txView) CreateRecord(ctx context.Context, rec *model.LedgerRecord) error {
	return t.st.createRecord(rec)
}

func (t *txView) UpdateRecord(ctx context.Context, rec model.LedgerRecord) error {
	return t.st.updateRecord(rec)
}

func (t *txView) SettleIfOpen(ctx context.Context, userID, recordID int64, settledOn time.Time, correlationKey *string) (bool, error) {
	return t.st.settleIfOpen(userID, recordID, settledOn, correlationKey)
}

func (t *txView) ListRules(ctx context.Context, userID int64, polarity model.Polarity) ([]model.ClassificationRule, error) {
	return t.st.listRules(userID, polarity)
}

func (t *txView) CreateRule(ctx context.Context, rule *model.ClassificationRule) error {
	return t.st.createRule(rule)
}

func (s *state) getRecord(userID, recordID int64) (model.LedgerRecord, error) {
	rec, ok := s.records[recordID]
	if !ok || rec.UserID != userID {
		return model.LedgerRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *state) findByCorrelationKey(userID int64, polarity model.Polarity, key string) (model.LedgerRecord, error) {
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Polarity == polarity && rec.CorrelationKey != nil && *rec.CorrelationKey == key {
			return rec, nil
		}
	}
	return model.LedgerRecord{}, store.ErrNotFound
}

func (s *state) findOpenByAmount(userID int64, polarity model.Polarity, amount decimal.Decimal, from, to time.Time) ([]model.LedgerRecord, error) {
	var out []model.LedgerRecord
	for _, rec := range s.records {
		if rec.UserID != userID || rec.Polarity != polarity || rec.IsSettled {
			continue
		}
		if !rec.Amount.Equal(amount) {
			continue
		}
		if rec.DueDate.Before(from) || rec.DueDate.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) createRecord(rec *model.LedgerRecord) error {
	if rec.CorrelationKey != nil {
		if _, err := s.findByCorrelationKey(rec.UserID, rec.Polarity, *rec.CorrelationKey); err == nil {
			return store.ErrDuplicateKey
		}
	}
	rec.ID = s.nextRecordID
	s.nextRecordID++
	s.records[rec.ID] = *rec
	return nil
}

func (s *state) updateRecord(rec model.LedgerRecord) error {
	if _, ok := s.records[rec.ID]; !ok {
		return store.ErrNotFound
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *state) settleIfOpen(userID, recordID int64, settledOn time.Time, correlationKey *string) (bool, error) {
	rec, ok := s.records[recordID]
	if !ok || rec.UserID != userID {
		return false, store.ErrNotFound
	}
	if rec.IsSettled {
		return false, nil
	}
	rec.Settle(settledOn)
	rec.CorrelationKey = correlationKey
	s.records[recordID] = rec
	return true, nil
}

func (s *state) listRules(userID int64, polarity model.Polarity) ([]model.ClassificationRule, error) {
	var out []model.ClassificationRule
	for _, r := range s.rules {
		if r.UserID == userID && r.Polarity == polarity {
			out = append(out, r)
		}
	}
	// rules slice is append-only, so this is already creation order
	return out, nil
}

func (s *state) createRule(rule *model.ClassificationRule) error {
	term := strings.ToLower(rule.MatchTerm)
	for _, r := range s.rules {
		if r.UserID == rule.UserID && r.Polarity == rule.Polarity && r.MatchTerm == term {
			return store.ErrDuplicateKey
		}
	}
	rule.MatchTerm = term
	rule.ID = s.nextRuleID
	s.nextRuleID++
	s.rules = append(s.rules, *rule)
	return nil
}

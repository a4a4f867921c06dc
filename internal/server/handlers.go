package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/labstack/gommon/log"

	"github.com/ledgersync-dev/ledgersync/internal/ledger"
	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/recon"
	"github.com/ledgersync-dev/ledgersync/internal/rules"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

type syncRequest struct {
	UserID int64        `json:"user_id"`
	Items  []recon.Item `json:"items"`
}

type reverseRequest struct {
	UserID int64 `json:"user_id"`
}

type reverseResponse struct {
	Record  recordPayload  `json:"record"`
	Spawned *recordPayload `json:"spawned_record,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}

	summary, err := s.runner.Run(r.Context(), req.UserID, req.Items)
	s.rememberBatch(summary)
	if err != nil {
		// Partial progress stands: committed items are retained. Report
		// the batch-level failure alongside what did complete.
		log.Errorf("[api] sync batch %s aborted: %v", summary.BatchID, err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(summary)
		return
	}
	_ = json.NewEncoder(w).Encode(summary)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	recordID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req reverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var record model.LedgerRecord
	var spawned *model.LedgerRecord
	err = s.store.InTransaction(r.Context(), func(st store.Store) error {
		svc := ledger.NewService(st, rules.NewEngine(st))
		var rerr error
		record, spawned, rerr = svc.Reverse(r.Context(), req.UserID, recordID)
		return rerr
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Errorf("[api] reverse record %d: %v", recordID, err)
		writeError(w, http.StatusInternalServerError, "failed to reverse settlement")
		return
	}

	resp := reverseResponse{Record: toRecordPayload(record)}
	if spawned != nil {
		p := toRecordPayload(*spawned)
		resp.Spawned = &p
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.batch(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	_ = json.NewEncoder(w).Encode(summary)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// recordPayload is the wire form of a ledger record.
type recordPayload struct {
	ID               int64   `json:"id"`
	UserID           int64   `json:"user_id"`
	Polarity         string  `json:"polarity"`
	CounterpartyName string  `json:"counterparty_name"`
	Description      string  `json:"description"`
	Amount           string  `json:"amount"`
	DueDate          string  `json:"due_date"`
	SettlementDate   *string `json:"settlement_date,omitempty"`
	IsSettled        bool    `json:"is_settled"`
	CategoryID       *int64  `json:"category_id,omitempty"`
	DreArea          string  `json:"dre_area"`
	BankAccountID    *int64  `json:"bank_account_id,omitempty"`
	CorrelationKey   *string `json:"correlation_key,omitempty"`
	SourceBatchID    string  `json:"source_batch_id,omitempty"`
}

const dateFormat = "2006-01-02"

func toRecordPayload(rec model.LedgerRecord) recordPayload {
	p := recordPayload{
		ID:               rec.ID,
		UserID:           rec.UserID,
		Polarity:         string(rec.Polarity),
		CounterpartyName: rec.CounterpartyName,
		Description:      rec.Description,
		Amount:           rec.Amount.StringFixed(2),
		DueDate:          rec.DueDate.Format(dateFormat),
		IsSettled:        rec.IsSettled,
		CategoryID:       rec.CategoryID,
		DreArea:          string(rec.DreArea),
		BankAccountID:    rec.BankAccountID,
		CorrelationKey:   rec.CorrelationKey,
		SourceBatchID:    rec.SourceBatchID,
	}
	if rec.SettlementDate != nil {
		d := rec.SettlementDate.Format(dateFormat)
		p.SettlementDate = &d
	}
	return p
}

package recon

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/ledgersync-dev/ledgersync/internal/ledger"
	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/normalize"
	"github.com/ledgersync-dev/ledgersync/internal/rules"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

// Outcome is the per-transaction result reported back to the caller.
type Outcome string

const (
	OutcomeCreated           Outcome = "created"
	OutcomeMatchedOpenRecord Outcome = "updated-matched-open-record"
	OutcomeDuplicate         Outcome = "updated-duplicate"
	OutcomeFailed            Outcome = "failed"
)

// Item is one raw payload handed in by a statement parser or provider
// client. The sequence per sync invocation is finite and unordered.
type Item struct {
	Provider string          `json:"provider"`
	Payload  json.RawMessage `json:"payload"`
}

// Result is the outcome for a single item. For failures the raw description
// and amount are carried so a human can fix the source data.
type Result struct {
	Outcome        Outcome `json:"outcome"`
	RecordID       int64   `json:"record_id,omitempty"`
	FailureReason  string  `json:"failure_reason,omitempty"`
	RawDescription string  `json:"raw_description,omitempty"`
	RawAmount      string  `json:"raw_amount,omitempty"`
}

// Summary is the per-batch report.
type Summary struct {
	BatchID    string   `json:"batch_id"`
	UserID     int64    `json:"user_id"`
	Created    int      `json:"created"`
	Matched    int      `json:"matched"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

func (s *Summary) add(res Result) {
	switch res.Outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeMatchedOpenRecord:
		s.Matched++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeFailed:
		s.Failed++
	}
	s.Results = append(s.Results, res)
}

// Runner processes one user's transaction batch, sequentially, one atomic
// store unit per transaction. Batches for different users may run
// concurrently against the same store; the unique indexes are the only
// cross-batch coordination.
type Runner struct {
	store    store.Store
	registry *normalize.Registry
	matcher  *Matcher
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, registry *normalize.Registry, matcher *Matcher) *Runner {
	return &Runner{store: st, registry: registry, matcher: matcher, now: time.Now}
}

// Run processes the batch and returns its summary. Normalization failures
// and per-item errors are recorded and the batch continues; an unavailable
// store aborts the remaining items (already-committed items stand, since
// each had its own transaction). Cancellation is honored between items.
func (r *Runner) Run(ctx context.Context, userID int64, items []Item) (Summary, error) {
	summary := Summary{BatchID: uuid.NewString(), UserID: userID}
	syncDate := model.DateOf(r.now().UTC())

	log.Infof("[sync] batch %s: user %d, %d items", summary.BatchID, userID, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			log.Warnf("[sync] batch %s aborted after %d items: %v", summary.BatchID, i, err)
			return summary, err
		}

		tx, err := r.registry.Decode(item.Provider, item.Payload, syncDate)
		if err != nil {
			res := failure(err)
			log.Warnf("[sync] batch %s item %d: %s", summary.BatchID, i, res.FailureReason)
			summary.add(res)
			continue
		}
		if tx.SettlementDateInferred {
			log.Infof("[sync] batch %s item %d: settlement date missing, using sync date %s",
				summary.BatchID, i, syncDate.Format("2006-01-02"))
		}

		var res Result
		err = r.store.InTransaction(ctx, func(st store.Store) error {
			var perr error
			res, perr = r.processOne(ctx, st, userID, summary.BatchID, tx)
			return perr
		})
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				log.Errorf("[sync] batch %s: store unavailable, aborting: %v", summary.BatchID, err)
				return summary, err
			}
			summary.add(Result{
				Outcome:        OutcomeFailed,
				FailureReason:  err.Error(),
				RawDescription: tx.Description,
				RawAmount:      tx.Amount.String(),
			})
			continue
		}
		summary.add(res)
	}

	log.Infof("[sync] batch %s done: created=%d matched=%d duplicates=%d failed=%d",
		summary.BatchID, summary.Created, summary.Matched, summary.Duplicates, summary.Failed)
	return summary, nil
}

// processOne runs the match→upsert sequence for one canonical transaction
// inside its transactional store view.
func (r *Runner) processOne(ctx context.Context, st store.Store, userID int64, batchID string, tx model.ExternalTransaction) (Result, error) {
	svc := ledger.NewService(st, rules.NewEngine(st))

	hasExisting := false
	if tx.CorrelationKey != nil {
		_, err := st.FindByCorrelationKey(ctx, userID, tx.Polarity, *tx.CorrelationKey)
		switch {
		case err == nil:
			hasExisting = true
		case !errors.Is(err, store.ErrNotFound):
			return Result{}, err
		}
	}

	// Only transactions without a strong identity and without an existing
	// correlation are eligible for fuzzy matching.
	if !hasExisting && (tx.CorrelationKey == nil || tx.FingerprintKey) {
		rec, matched, err := r.matcher.Match(ctx, st, userID, tx)
		if err != nil {
			return Result{}, err
		}
		if matched {
			return Result{Outcome: OutcomeMatchedOpenRecord, RecordID: rec.ID}, nil
		}
	}

	rec, created, err := svc.Upsert(ctx, userID, batchID, tx)
	if err != nil {
		return Result{}, err
	}
	outcome := OutcomeDuplicate
	if created {
		outcome = OutcomeCreated
	}
	return Result{Outcome: outcome, RecordID: rec.ID}, nil
}

func failure(err error) Result {
	res := Result{Outcome: OutcomeFailed, FailureReason: err.Error()}
	var nerr *normalize.Error
	if errors.As(err, &nerr) {
		res.RawDescription = nerr.RawDescription
		res.RawAmount = nerr.RawAmount
	}
	return res
}

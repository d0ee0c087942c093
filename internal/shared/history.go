package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryAction enumerates document history actions.
type HistoryAction string

const (
	// HistorySubmit marks document submission.
	HistorySubmit HistoryAction = "SUBMIT"
	// HistoryApprove marks an approval by one approver slot.
	HistoryApprove HistoryAction = "APPROVE"
	// HistoryReject marks a rejection.
	HistoryReject HistoryAction = "REJECT"
	// HistoryConvert marks conversion into a downstream document.
	HistoryConvert HistoryAction = "CONVERT"
)

// HistoryEntry is a single row of a document's tracking timeline.
type HistoryEntry struct {
	ID      int64         `json:"id"`
	Module  string        `json:"module"`
	DocNo   string        `json:"doc_no"`
	ActorID int64         `json:"actor_id"`
	Action  HistoryAction `json:"action"`
	Note    string        `json:"note"`
	At      time.Time     `json:"at"`
}

// HistoryRecorder persists the per-document approval/tracking timeline.
type HistoryRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHistoryRecorder constructs HistoryRecorder.
func NewHistoryRecorder(pool *pgxpool.Pool, logger *slog.Logger) *HistoryRecorder {
	return &HistoryRecorder{pool: pool, logger: logger}
}

// Record writes a timeline entry.
func (r *HistoryRecorder) Record(ctx context.Context, entry HistoryEntry) error {
	if r == nil {
		return errors.New("history recorder not initialised")
	}
	if entry.Module == "" || entry.DocNo == "" || entry.Action == "" {
		return errors.New("history entry requires module/doc_no/action")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO document_history (module, doc_no, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Module, entry.DocNo, entry.ActorID, string(entry.Action), entry.Note, entry.At)
	if err != nil {
		r.logger.Error("record history", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns the timeline for a document, oldest first.
func (r *HistoryRecorder) List(ctx context.Context, module, docNo string) ([]HistoryEntry, error) {
	if r == nil {
		return nil, errors.New("history recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, doc_no, actor_id, action, note, at
FROM document_history WHERE module=$1 AND doc_no=$2 ORDER BY at ASC`, module, docNo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var action string
		if err := rows.Scan(&e.ID, &e.Module, &e.DocNo, &e.ActorID, &action, &e.Note, &e.At); err != nil {
			return nil, err
		}
		e.Action = HistoryAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

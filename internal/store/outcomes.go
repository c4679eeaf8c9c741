package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/optibot/optibot/internal/workflow"
)

// OutcomeRecord is one persisted terminal outcome.
type OutcomeRecord struct {
	Timestamp         time.Time `json:"timestamp"`
	RequestID         string    `json:"requestId"`
	Namespace         string    `json:"namespace"`
	Workload          string    `json:"workload"`
	Applied           bool      `json:"applied"`
	FailedStage       string    `json:"failedStage,omitempty"`
	TicketKey         string    `json:"ticketKey,omitempty"`
	TicketPlaceholder bool      `json:"ticketPlaceholder"`
	Notified          bool      `json:"notified"`
	InitiatingUser    string    `json:"initiatingUser"`
	Error             string    `json:"error,omitempty"`
}

// OutcomeLog writes terminal outcomes through a single goroutine so the
// workflow never blocks on SQLite contention. With a nil DB it drops writes
// silently (in-memory mode).
type OutcomeLog struct {
	db *DB
	ch chan OutcomeRecord
	wg sync.WaitGroup
}

// NewOutcomeLog creates the log. db may be nil.
func NewOutcomeLog(db *DB) *OutcomeLog {
	return &OutcomeLog{
		db: db,
		ch: make(chan OutcomeRecord, 256),
	}
}

// Run processes queued records until ctx is cancelled, then drains.
func (l *OutcomeLog) Run(ctx context.Context) {
	if l.db == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case rec := <-l.ch:
				l.insert(rec)
			case <-ctx.Done():
				for {
					select {
					case rec := <-l.ch:
						l.insert(rec)
					default:
						return
					}
				}
			}
		}
	}()
}

// Wait blocks until the run goroutine has drained and exited.
func (l *OutcomeLog) Wait() {
	l.wg.Wait()
}

// RecordOutcome implements workflow.Recorder. A full queue drops the record
// rather than blocking the workflow.
func (l *OutcomeLog) RecordOutcome(o workflow.Outcome, user string) {
	if l.db == nil {
		return
	}
	rec := OutcomeRecord{
		Timestamp:         time.Now(),
		RequestID:         o.RequestID,
		Namespace:         o.Workload.Namespace,
		Workload:          o.Workload.Name,
		Applied:           o.Applied,
		FailedStage:       string(o.FailedAt),
		TicketKey:         o.Ticket.Key,
		TicketPlaceholder: o.Ticket.Placeholder,
		Notified:          o.Notified,
		InitiatingUser:    user,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}

	select {
	case l.ch <- rec:
	default:
		slog.Warn("outcome log: dropping record, queue full", "requestId", rec.RequestID)
	}
}

func (l *OutcomeLog) insert(rec OutcomeRecord) {
	_, err := l.db.db.Exec(`
INSERT INTO change_outcomes
	(timestamp, request_id, namespace, workload, applied, failed_stage, ticket_key, ticket_placeholder, notified, initiating_user, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Format(time.RFC3339), rec.RequestID, rec.Namespace, rec.Workload,
		boolInt(rec.Applied), rec.FailedStage, rec.TicketKey, boolInt(rec.TicketPlaceholder),
		boolInt(rec.Notified), rec.InitiatingUser, rec.Error,
	)
	if err != nil {
		slog.Error("outcome log: insert failed", "requestId", rec.RequestID, "error", err)
	}
}

// Recent returns the most recent terminal outcomes, newest first.
func (l *OutcomeLog) Recent(limit int) ([]OutcomeRecord, error) {
	if l.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := l.db.db.Query(`
SELECT timestamp, request_id, namespace, workload, applied, failed_stage, ticket_key, ticket_placeholder, notified, initiating_user, error
FROM change_outcomes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var ts string
		var applied, placeholder, notified int
		if err := rows.Scan(&ts, &rec.RequestID, &rec.Namespace, &rec.Workload, &applied,
			&rec.FailedStage, &rec.TicketKey, &placeholder, &notified, &rec.InitiatingUser, &rec.Error); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		rec.Applied = applied != 0
		rec.TicketPlaceholder = placeholder != 0
		rec.Notified = notified != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ workflow.Recorder = (*OutcomeLog)(nil)

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/optibot/optibot/internal/workflow"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:          filepath.Join(t.TempDir(), "optibot.db"),
		RetentionDays: 30,
	})
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOutcomeLogRoundTrip(t *testing.T) {
	db := openTestDB(t)
	log := NewOutcomeLog(db)

	ctx, cancel := context.WithCancel(context.Background())
	log.Run(ctx)

	log.RecordOutcome(workflow.Outcome{
		RequestID: "req-1",
		Workload:  workflow.NewWorkloadRef("default", "frontend-service"),
		Applied:   true,
		Ticket:    workflow.TicketRef{Key: "OPS-42"},
		Notified:  true,
	}, "U123")
	log.RecordOutcome(workflow.Outcome{
		RequestID: "req-2",
		Workload:  workflow.NewWorkloadRef("backend", "api-service"),
		FailedAt:  workflow.StageApply,
		Err:       errors.New("conflict persisted"),
	}, "U456")

	cancel()
	log.Wait()

	recs, err := log.Recent(10)
	if err != nil {
		t.Fatalf("Recent() unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(recs))
	}

	// Newest first.
	if recs[0].RequestID != "req-2" {
		t.Errorf("recs[0].RequestID = %q, want req-2", recs[0].RequestID)
	}
	if recs[0].Applied {
		t.Error("failed outcome persisted as applied")
	}
	if recs[0].FailedStage != string(workflow.StageApply) {
		t.Errorf("FailedStage = %q, want %q", recs[0].FailedStage, workflow.StageApply)
	}
	if recs[0].Error != "conflict persisted" {
		t.Errorf("Error = %q, want the outcome error text", recs[0].Error)
	}

	if recs[1].RequestID != "req-1" {
		t.Errorf("recs[1].RequestID = %q, want req-1", recs[1].RequestID)
	}
	if !recs[1].Applied || !recs[1].Notified {
		t.Errorf("applied outcome persisted as %+v", recs[1])
	}
	if recs[1].TicketKey != "OPS-42" {
		t.Errorf("TicketKey = %q, want OPS-42", recs[1].TicketKey)
	}
	if recs[1].InitiatingUser != "U123" {
		t.Errorf("InitiatingUser = %q, want U123", recs[1].InitiatingUser)
	}
}

func TestOutcomeLogNilDB(t *testing.T) {
	log := NewOutcomeLog(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log.Run(ctx)

	// Must be a silent no-op, not a panic.
	log.RecordOutcome(workflow.Outcome{RequestID: "req-1"}, "U123")
	log.Wait()

	recs, err := log.Recent(10)
	if err != nil {
		t.Fatalf("Recent() unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Recent() on nil DB returned %d records, want 0", len(recs))
	}
}

func TestCleanup(t *testing.T) {
	db := openTestDB(t)

	old := time.Now().AddDate(0, 0, -60).Format(time.RFC3339)
	fresh := time.Now().Format(time.RFC3339)
	for _, ts := range []string{old, fresh} {
		if _, err := db.db.Exec(`
INSERT INTO change_outcomes
	(timestamp, request_id, namespace, workload, applied, failed_stage, ticket_key, ticket_placeholder, notified, initiating_user, error)
VALUES (?, 'r', 'default', 'app', 1, '', 'OPS-1', 0, 1, 'U1', '')`, ts); err != nil {
			t.Fatalf("seeding row: %v", err)
		}
	}

	if err := db.Cleanup(); err != nil {
		t.Fatalf("Cleanup() unexpected error: %v", err)
	}

	var count int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM change_outcomes").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("rows after cleanup = %d, want 1 (30-day retention)", count)
	}
}

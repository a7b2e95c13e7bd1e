package callhistory

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordEndedAndRecent(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	now := time.Now()
	rec := Record{
		CallHistoryID:  "h1",
		CallID:         "c1",
		InviteID:       "i1",
		RemoteUserID:   "u2",
		RemoteUserName: "Bob",
		Role:           "sender",
		StartedAt:      now.Add(-time.Minute),
		EndedAt:        now,
		Reason:         "hangup",
		EndedBy:        "me",
	}
	if err := r.RecordEnded(rec); err != nil {
		t.Fatalf("RecordEnded: %v", err)
	}

	rows, err := r.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].CallHistoryID != "h1" || rows[0].RemoteUserName != "Bob" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestRecordEndedUpsertsOnDuplicateID(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	base := Record{CallHistoryID: "h1", CallID: "c1", RemoteUserID: "u2", Role: "sender", EndedAt: time.Now(), Reason: "first"}
	if err := r.RecordEnded(base); err != nil {
		t.Fatalf("RecordEnded (1): %v", err)
	}
	base.Reason = "second"
	if err := r.RecordEnded(base); err != nil {
		t.Fatalf("RecordEnded (2): %v", err)
	}

	rows, err := r.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected upsert to keep 1 row, got %d", len(rows))
	}
	if rows[0].Reason != "second" {
		t.Fatalf("expected reason to be updated, got %q", rows[0].Reason)
	}
}

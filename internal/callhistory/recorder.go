package callhistory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed (or abandoned) call, as written at end-of-call.
type Record struct {
	CallHistoryID  string
	CallID         string
	InviteID       string
	RemoteUserID   string
	RemoteUserName string
	Role           string
	StartedAt      time.Time
	EndedAt        time.Time
	Reason         string
	EndedBy        string
}

// Recorder persists Records to a SQLite database, mirroring
// internal/storage/db.go's Open/PRAGMA/wrapped-error shape.
type Recorder struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the call-history database at path.
func Open(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create callhistory dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open callhistory db: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure callhistory db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS call_history (
			call_history_id  TEXT PRIMARY KEY,
			call_id          TEXT NOT NULL,
			invite_id        TEXT,
			remote_user_id   TEXT NOT NULL,
			remote_user_name TEXT,
			role             TEXT NOT NULL,
			started_at       DATETIME,
			ended_at         DATETIME NOT NULL,
			reason           TEXT,
			ended_by         TEXT
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create call_history table: %w", err)
	}

	return &Recorder{db: db}, nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// RecordEnded persists rec, upserting on CallHistoryID so a duplicate
// end-of-call notification for the same history id is harmless.
func (r *Recorder) RecordEnded(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var startedAt any
	if !rec.StartedAt.IsZero() {
		startedAt = rec.StartedAt
	}

	_, err := r.db.Exec(`
		INSERT INTO call_history
			(call_history_id, call_id, invite_id, remote_user_id, remote_user_name, role, started_at, ended_at, reason, ended_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_history_id) DO UPDATE SET
			call_id = excluded.call_id,
			ended_at = excluded.ended_at,
			reason = excluded.reason,
			ended_by = excluded.ended_by
	`, rec.CallHistoryID, rec.CallID, rec.InviteID, rec.RemoteUserID, rec.RemoteUserName, rec.Role, startedAt, rec.EndedAt, rec.Reason, rec.EndedBy)
	if err != nil {
		return fmt.Errorf("record call history %s: %w", rec.CallHistoryID, err)
	}
	return nil
}

// Recent returns the most recently ended calls, newest first, for
// debugging/inspection endpoints.
func (r *Recorder) Recent(limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`
		SELECT call_history_id, call_id, invite_id, remote_user_id, remote_user_name, role,
		       COALESCE(started_at, ended_at), ended_at, COALESCE(reason, ''), COALESCE(ended_by, '')
		FROM call_history
		ORDER BY ended_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query call history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.CallHistoryID, &rec.CallID, &rec.InviteID, &rec.RemoteUserID,
			&rec.RemoteUserName, &rec.Role, &rec.StartedAt, &rec.EndedAt, &rec.Reason, &rec.EndedBy); err != nil {
			return nil, fmt.Errorf("scan call history row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

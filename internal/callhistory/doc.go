// Package callhistory is the external call-history collaborator named in
// §1/§3 (callHistoryId). §9's resolved Open Question treats history
// recording as an explicit call made at end-of-call, never a side effect
// of resetting the ActiveCall atom. It is grounded on the teacher
// stack's internal/storage/db.go: a SQLite-backed store opened once per
// process, guarded by its own mutex, with wrapped errors.
package callhistory

// Package store holds the two observable state atoms — Invitation and
// ActiveCall — and broadcasts change notifications to subscribers.
//
// It carries no business logic: every mutation is a small, enumerated
// reducer-style action (SetInvitation, ResetInvitation, SetActiveCall,
// ResetActiveCall) applied under one mutex, and every mutation fires a
// synchronous notification to subscribers in the order issued. The shape
// follows internal/state.PeerTable from the teacher stack: a mutex-guarded
// value plus a slice of listener channels, non-blocking sends so one slow
// subscriber can't stall another.
package store

// Package timeout implements the Timeout & Expiry Service (§4.5):
// single-shot timers keyed by (atom, id), armed and cancelled by the
// coordinator. Firing is idempotent — a cancelled timer never fires, and
// a timer that has fired once is inert — matching the cancellation
// guarantee in §5 and invariant I5.
package timeout

// Package signaling is the Signaling Event Binder (C2, §4.2): it
// subscribes to the named inbound events on a transport.Channel, decodes
// and validates each payload into a closed event-variant struct, and
// hands the typed event to a Handler (the Call Flow Coordinator).
//
// It also owns the two transport-survival behaviors §4.2 calls out:
// idempotent re-registration across reconnects (Attach replaces any
// previous subscription rather than stacking a second one), and bounded
// retry when the channel isn't ready yet (AttachWithRetry). Both are
// modeled on internal/realtime.Manager's single dispatch loop and
// internal/call/manager.go's payload type-switch dispatch.
package signaling

// Package callflow is the Call Flow Coordinator (C3): the client-side
// singleton that owns the Invitation and ActiveCall atoms in
// internal/store and drives their transitions from signaling events
// (internal/signaling), a media adapter (internal/media), and its own
// keyed timers (internal/timeout).
//
// It is modeled on the teacher stack's internal/call.Manager: one
// struct holding the session maps, a handler method per inbound event,
// and a small notification fan-out for the process embedding it. The
// coordinator never talks to the network or to WebRTC directly — both
// are injected so the coordinator itself stays deterministic and
// testable with a LoopbackChannel and a FakeAdapter.
package callflow

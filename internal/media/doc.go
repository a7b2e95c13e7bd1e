// Package media implements the narrow Media Session Adapter contract
// (§4.4): Initialize once per process, SyncState before/at the first
// call:start so the adapter accepts the inbound offer, and Connected/
// Disconnected events the coordinator consumes to drive the ActiveCall
// atom's connecting -> connected -> (ended) transitions.
//
// Adapter is deliberately narrow because the media negotiation protocol
// itself is out of scope (§1 Non-goals): the coordinator only needs to
// know when a call session starts carrying media and when it stops.
// PionAdapter drives a real webrtc.PeerConnection up to that edge,
// grounded on the teacher stack's call/session.go, without camera/mic
// capture (pion/mediadevices is declined — see DESIGN.md).
package media

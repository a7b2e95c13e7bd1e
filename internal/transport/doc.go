// Package transport implements the wire-level half of the bidirectional
// signaling channel (§4.2, §6): a small Channel interface the signaling
// binder and coordinator are built against, a WebSocket implementation
// grounded on the teacher stack's realtime.Manager Envelope/Subscribe/Send
// contract and its gorilla/websocket upgrader, and an in-memory loopback
// implementation for deterministic tests.
package transport

// Package incoming is the Incoming Invitation Facade (C6): a narrow
// entry point for invitations delivered outside the signaling channel
// (e.g. a push notification that woke the process up before the
// websocket reconnected). It feeds the exact same decode-validate-
// dispatch path the signaling binder uses, so a later duplicate
// delivery of the same invite over the signaling channel is a no-op.
package incoming

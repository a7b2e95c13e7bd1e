// Package idgen mints opaque identifiers for invitations and calls.
// Real deployments get inviteId/callId from the signaling server; the
// coordinator uses InviteID only for the local handle that keys a
// sender's invitation-expiry timer.
package idgen

import "github.com/google/uuid"

// InviteID mints a new opaque invitation identifier.
func InviteID() string {
	return "inv-" + uuid.NewString()
}

// CallID mints a new opaque call session identifier.
func CallID() string {
	return "call-" + uuid.NewString()
}

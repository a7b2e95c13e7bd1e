package store

import "time"

// Role identifies which side of an invitation or call this client is.
type Role string

const (
	RoleNone     Role = "none"
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// InvitationStatus is the finite lifecycle of the Invitation atom.
type InvitationStatus string

const (
	InvitationIdle     InvitationStatus = "idle"
	InvitationInviting InvitationStatus = "inviting"
	InvitationIncoming InvitationStatus = "incoming"
)

// CallStatus is the finite lifecycle of the ActiveCall atom.
type CallStatus string

const (
	CallIdle       CallStatus = "idle"
	CallConnecting CallStatus = "connecting"
	CallConnected  CallStatus = "connected"
	CallEnded      CallStatus = "ended"
)

// Invitation is the pre-call handshake artifact (§3). The zero value is
// the idle state.
type Invitation struct {
	InviteID             string
	Role                 Role
	Status               InvitationStatus
	RemoteUserID         string
	RemoteUserName       string
	RemoteUserProfilePic string
	ExpiresAt            time.Time
	Metadata             map[string]any
	CallHistoryID        string
}

// IsZero reports whether this is the idle/reset value.
func (i Invitation) IsZero() bool {
	return i.Status == "" || i.Status == InvitationIdle
}

// ActiveCall is the media-session-bound call (§3). The zero value is the
// idle state.
type ActiveCall struct {
	Status         CallStatus
	CallID         string
	Role           Role
	RemoteUserID   string
	RemoteUserName string
	IsAudioEnabled bool
	IsVideoEnabled bool
	CallStartTime  time.Time
	CallHistoryID  string
}

// IsZero reports whether this is the idle/reset value.
func (c ActiveCall) IsZero() bool {
	return c.Status == "" || c.Status == CallIdle
}

// Duration returns the elapsed call time since CallStartTime, or zero if
// the call hasn't started.
func (c ActiveCall) Duration(now time.Time) time.Duration {
	if c.CallStartTime.IsZero() {
		return 0
	}
	return now.Sub(c.CallStartTime)
}

package callflow

import "errors"

var (
	// ErrNoChannel is returned by operations that send an outbound event
	// when no signaling channel has been attached yet.
	ErrNoChannel = errors.New("callflow: signaling channel not attached")

	// ErrAlreadyInProgress is returned by SendInvitation when the
	// Invitation atom is not idle.
	ErrAlreadyInProgress = errors.New("callflow: an invitation is already in progress")

	// ErrAlreadyInCall is returned by SendInvitation when ActiveCall is
	// connecting or connected.
	ErrAlreadyInCall = errors.New("callflow: already in a call")

	// ErrNoInvitation is returned by AcceptInvitation, DeclineInvitation,
	// and CancelInvitation when there is no matching Invitation to act on.
	ErrNoInvitation = errors.New("callflow: no current invitation")

	// ErrInvitationMismatch is returned by AcceptInvitation,
	// DeclineInvitation, and CancelInvitation when the caller's inviteId
	// no longer matches the current Invitation (it was superseded or
	// resolved between the caller reading it and invoking the operation).
	ErrInvitationMismatch = errors.New("callflow: inviteId does not match current invitation")

	// ErrNoActiveCall is returned by EndCall when ActiveCall is idle.
	ErrNoActiveCall = errors.New("callflow: no active call")

	// ErrRoleMismatch is returned by CancelInvitation when the current
	// inviting Invitation's role is not sender.
	ErrRoleMismatch = errors.New("callflow: operation not valid for this invitation's role")
)

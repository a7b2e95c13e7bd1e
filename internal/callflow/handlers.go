package callflow

import (
	"log"
	"time"

	"github.com/callflow/coordinator/internal/media"
	"github.com/callflow/coordinator/internal/signaling"
	"github.com/callflow/coordinator/internal/store"
	"github.com/callflow/coordinator/internal/timeout"
)

// HandleInviteIncoming implements signaling.Handler. It populates the
// Invitation atom as the receiver side and arms a local expiry timer as
// a safety net in case the server's own invite:expired is lost (§4.3
// rule 7). A match-flow invitation (rule 8) is auto-accepted.
func (c *Coordinator) HandleInviteIncoming(ev signaling.InviteIncoming) {
	cur := c.store.Invitation()
	if cur.InviteID != "" && cur.InviteID == ev.InviteID {
		return // retransmission of the invitation already tracked (§8)
	}
	c.mu.Lock()
	_, alreadyMapped := c.inviteMapping[ev.InviteID]
	c.mu.Unlock()
	if alreadyMapped {
		return // already accepted (and possibly promoted); ignore the retransmit (§8)
	}

	if c.IsInCall() || !cur.IsZero() {
		log.Printf("CALLFLOW: dropping invite:incoming %s, busy", ev.InviteID)
		_ = c.binder.Send(signaling.EventOutboundDecline, map[string]any{"inviteId": ev.InviteID})
		return
	}

	role := store.RoleReceiver
	status := store.InvitationIncoming
	expiresAt := ev.ExpiresAt.Time()
	inviteID := ev.InviteID
	remoteID := ev.CallerID
	remoteName := ev.CallerName
	remotePic := ev.CallerProfilePic
	historyID := ev.CallHistoryID

	inv := c.store.SetInvitation(store.InvitationPatch{
		InviteID:             &inviteID,
		Role:                 &role,
		Status:               &status,
		RemoteUserID:         &remoteID,
		RemoteUserName:       &remoteName,
		RemoteUserProfilePic: &remotePic,
		ExpiresAt:            &expiresAt,
		Metadata:             ev.Metadata,
		CallHistoryID:        &historyID,
	})

	c.timeouts.Arm(timeout.Key{Atom: "invitation", ID: inviteID}, expiresAt, func() {
		c.handleLocalInviteTimeout(inviteID)
	})

	c.bus.emit(NotifyInvitationUpdated, inv)

	if ev.AutoAccept() {
		if err := c.AcceptInvitation(inviteID); err != nil {
			log.Printf("CALLFLOW: auto-accept invite %s: %v", inviteID, err)
		}
	}
}

// HandleInviteSuccess assigns the server-confirmed inviteId onto the
// sender's in-flight Invitation — it has none of its own until this
// event arrives (§3) — along with the call history id, if any.
func (c *Coordinator) HandleInviteSuccess(ev signaling.InviteSuccess) {
	cur := c.store.Invitation()
	if cur.Role != store.RoleSender || cur.Status != store.InvitationInviting {
		return
	}
	if ev.ReceiverID != "" && ev.ReceiverID != cur.RemoteUserID {
		return
	}

	inviteID := ev.InviteID
	patch := store.InvitationPatch{InviteID: &inviteID}
	if ev.CallHistoryID != "" {
		historyID := ev.CallHistoryID
		patch.CallHistoryID = &historyID
	}
	inv := c.store.SetInvitation(patch)
	c.bus.emit(NotifyInvitationUpdated, inv)
}

// HandleInviteError resets a sender's outgoing invitation that the
// server rejected.
func (c *Coordinator) HandleInviteError(ev signaling.InviteError) {
	cur := c.store.Invitation()
	if cur.Status != store.InvitationInviting {
		return
	}
	c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: cur.InviteID})
	c.mu.Lock()
	delete(c.inviteMapping, cur.InviteID)
	c.mu.Unlock()

	inv := c.store.ResetInvitation()
	c.bus.emit(NotifyInvitationUpdated, inv)
	c.bus.emit(NotifyError, ev.Error)
}

// HandleInviteDeclined implements the decline-wins race (§4.3 rule 5):
// a decline always clears the invitation and forgets the mapping, even
// if accept already ran locally, as long as call:start has not yet
// promoted it to a real call.
func (c *Coordinator) HandleInviteDeclined(ev signaling.InviteDeclined) {
	c.mu.Lock()
	mapped, hadMapping := c.inviteMapping[ev.InviteID]
	if hadMapping && mapped != pendingCallID {
		c.mu.Unlock()
		return // already promoted; decline lost the race, ignore it
	}
	delete(c.inviteMapping, ev.InviteID)
	c.mu.Unlock()

	c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: ev.InviteID})

	cur := c.store.Invitation()
	if cur.InviteID != ev.InviteID {
		return
	}
	inv := c.store.ResetInvitation()
	c.bus.emit(NotifyInvitationUpdated, inv)
	c.resetStuckConnectingCall()
}

// HandleInviteCancelled applies the anti-tear-down rule (I3): if the
// invitation already promoted to a real call, a late cancel is a no-op.
func (c *Coordinator) HandleInviteCancelled(ev signaling.InviteCancelled) {
	c.teardownInvitationEvent(ev.InviteID)
}

// HandleInviteExpired applies the same anti-tear-down rule as
// HandleInviteCancelled — both are late, pre-promotion-only signals.
func (c *Coordinator) HandleInviteExpired(ev signaling.InviteExpired) {
	c.teardownInvitationEvent(ev.InviteID)
}

func (c *Coordinator) teardownInvitationEvent(inviteID string) {
	c.mu.Lock()
	mapped, hadMapping := c.inviteMapping[inviteID]
	if hadMapping && mapped != pendingCallID {
		c.mu.Unlock()
		return // call already promoted (and possibly connected); don't touch it
	}
	delete(c.inviteMapping, inviteID)
	c.mu.Unlock()

	c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: inviteID})

	cur := c.store.Invitation()
	if cur.InviteID != inviteID {
		return
	}
	inv := c.store.ResetInvitation()
	c.bus.emit(NotifyInvitationUpdated, inv)
	c.resetStuckConnectingCall()
}

// HandleCallStart implements §4.3 rules 1 and 2: idempotent per callId
// (L1), and promotes whichever invitation (if any) corresponds to this
// call's participants into the ActiveCall atom.
func (c *Coordinator) HandleCallStart(ev signaling.CallStart) {
	c.mu.Lock()
	if c.handledCalls[ev.CallID] {
		c.mu.Unlock()
		return
	}
	c.handledCalls[ev.CallID] = true
	c.mu.Unlock()

	role, remoteUserID, ok := c.resolveRole(ev)
	if !ok {
		log.Printf("CALLFLOW: call:start %s names neither caller nor receiver as %s", ev.CallID, c.auth.UserID)
		return
	}

	inv := c.store.Invitation()
	existing := c.store.ActiveCall()
	// AcceptInvitation may already have put ActiveCall into connecting
	// with no callId bound (remote info copied from Invitation at
	// accept time); when that's the case, upgrade that same record
	// rather than re-deriving its fields from scratch.
	alreadyConnecting := existing.Status == store.CallConnecting && existing.CallID == ""

	remoteName := inv.RemoteUserName
	historyID := ev.CallHistoryID
	if historyID == "" {
		historyID = inv.CallHistoryID
	}
	if alreadyConnecting {
		remoteName = existing.RemoteUserName
		if historyID == "" {
			historyID = existing.CallHistoryID
		}
	}

	// The local invitation corresponding to this call may still be
	// missing its inviteId: call:start can race ahead of invite:success
	// for the sender (§3), and AcceptInvitation resets nothing on the
	// receiver side until this point either. Match on role and remote
	// party instead of requiring a non-empty id; only skip recording the
	// inviteMapping entry when there's no id yet to key it by.
	invitationMatches := !inv.IsZero() && inv.RemoteUserID == remoteUserID &&
		((inv.Role == store.RoleSender && role == store.RoleSender) ||
			(inv.Role == store.RoleReceiver && role == store.RoleReceiver))
	if invitationMatches {
		if inv.InviteID != "" {
			c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: inv.InviteID})
			c.mu.Lock()
			c.inviteMapping[inv.InviteID] = ev.CallID
			c.mu.Unlock()
		}
		resetInv := c.store.ResetInvitation()
		c.bus.emit(NotifyInvitationUpdated, resetInv)
	}

	status := store.CallConnecting
	now := time.Now()
	call := c.store.SetActiveCall(store.ActiveCallPatch{
		Status:         &status,
		CallID:         &ev.CallID,
		Role:           &role,
		RemoteUserID:   &remoteUserID,
		RemoteUserName: &remoteName,
		IsVideoEnabled: boolPtr(ev.IsVideo()),
		CallStartTime:  &now,
		CallHistoryID:  &historyID,
	})

	c.timeouts.Arm(timeout.Key{Atom: "call", ID: ev.CallID}, now.Add(c.config().ConnectTimeout), func() {
		c.handleConnectTimeout(ev.CallID)
	})

	if err := c.media.SyncState(media.Snapshot{
		CallID:         ev.CallID,
		Role:           media.Role(role),
		RemoteUserID:   remoteUserID,
		IsVideoEnabled: ev.IsVideo(),
	}); err != nil {
		log.Printf("CALLFLOW: sync media state for call %s: %v", ev.CallID, err)
	}

	c.bus.emit(NotifyCallUpdated, call)
}

// resolveRole determines whether the local user is the caller or the
// receiver of ev, per §4.3 rule 2's role-ambiguity handling.
func (c *Coordinator) resolveRole(ev signaling.CallStart) (role store.Role, remoteUserID string, ok bool) {
	switch c.auth.UserID {
	case ev.CallerID:
		return store.RoleSender, ev.ReceiverID, true
	case ev.ReceiverID:
		return store.RoleReceiver, ev.CallerID, true
	default:
		return store.RoleNone, "", false
	}
}

// HandleCallEnd tears the call down when the remote side (or the
// server) ends it. A call:end for a stale or already-reset callId is
// ignored.
func (c *Coordinator) HandleCallEnd(ev signaling.CallEnd) {
	call := c.store.ActiveCall()
	if call.IsZero() || call.CallID != ev.CallID {
		return
	}
	c.finishCall(call, ev.Reason, ev.EndedBy)
}

// handleLocalInviteTimeout is the client-side invitation-expiry safety
// net (§4.3 rule 7) for the receiver side: it fires at the expiresAt
// carried by invite:incoming, independent of whether the server's own
// invite:expired ever arrives. The receiver's Invitation always carries
// a server-assigned inviteId (from invite:incoming), so matching by id
// is sound.
func (c *Coordinator) handleLocalInviteTimeout(inviteID string) {
	c.teardownInvitationEvent(inviteID)
}

// handleOutgoingInviteTimeout is the sender-side counterpart of
// handleLocalInviteTimeout. It is keyed by a local correlation handle
// rather than inviteId, because the sender's Invitation has no inviteId
// of its own until invite:success assigns one (§3) — so it matches the
// still-current outgoing invitation by role, status, remote party, and
// expiry instant instead of by id.
func (c *Coordinator) handleOutgoingInviteTimeout(localHandle, receiverID string, expiresAt time.Time) {
	cur := c.store.Invitation()
	if cur.Role != store.RoleSender || cur.Status != store.InvitationInviting || cur.RemoteUserID != receiverID ||
		!cur.ExpiresAt.Equal(expiresAt) {
		return // already resolved (error, cancel, decline, promotion) or replaced by a newer invitation
	}
	c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: localHandle})
	inv := c.store.ResetInvitation()
	c.bus.emit(NotifyInvitationUpdated, inv)
}

// handleConnectTimeout implements §4.3 rule 6: a call stuck in
// "connecting" past CONNECT_TIMEOUT is ended locally and reported to
// the remote side.
func (c *Coordinator) handleConnectTimeout(callID string) {
	call := c.store.ActiveCall()
	if call.IsZero() || call.CallID != callID || call.Status != store.CallConnecting {
		return
	}

	_ = c.binder.Send(signaling.EventOutboundCallEnd, map[string]any{
		"callId":  callID,
		"reason":  "connect_timeout",
		"endedBy": c.auth.UserID,
	})
	c.finishCall(call, "connect_timeout", c.auth.UserID)
}

// consumeMediaConnected promotes a connecting call to connected as soon
// as the media adapter reports its peer connection up (§4.3 rule 3). It
// fires NotifyWebrtcConnected and NotifyNavigateToCallScreen exactly
// once at this edge, distinct from the general NotifyCallUpdated fan-out
// that also fires on every other ActiveCall transition — a UI needs a
// one-shot signal to navigate, not a poll of every state change.
func (c *Coordinator) consumeMediaConnected() {
	for callID := range c.media.Connected() {
		call := c.store.ActiveCall()
		if call.IsZero() || call.CallID != callID || call.Status != store.CallConnecting {
			continue
		}
		c.timeouts.Cancel(timeout.Key{Atom: "call", ID: callID})
		status := store.CallConnected
		updated := c.store.SetActiveCall(store.ActiveCallPatch{Status: &status})
		c.bus.emit(NotifyCallUpdated, updated)
		c.bus.emit(NotifyWebrtcConnected, updated)
		c.bus.emit(NotifyNavigateToCallScreen, updated)
	}
}

// consumeMediaDisconnected ends the call locally when the media layer
// reports the peer connection dropped, notifying the remote side.
func (c *Coordinator) consumeMediaDisconnected() {
	for callID := range c.media.Disconnected() {
		call := c.store.ActiveCall()
		if call.IsZero() || call.CallID != callID {
			continue
		}
		_ = c.binder.Send(signaling.EventOutboundCallEnd, map[string]any{
			"callId":  callID,
			"reason":  "media_disconnected",
			"endedBy": c.auth.UserID,
		})
		c.finishCall(call, "media_disconnected", c.auth.UserID)
	}
}

func boolPtr(b bool) *bool { return &b }

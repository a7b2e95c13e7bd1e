package callflow

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/callflow/coordinator/internal/callhistory"
	"github.com/callflow/coordinator/internal/idgen"
	"github.com/callflow/coordinator/internal/media"
	"github.com/callflow/coordinator/internal/signaling"
	"github.com/callflow/coordinator/internal/store"
	"github.com/callflow/coordinator/internal/timeout"
	"github.com/callflow/coordinator/internal/transport"
)

// pendingCallID marks an inviteMapping entry for an accepted invitation
// that has not yet been promoted to a real call by call:start. It is the
// anti-tear-down sentinel behind I3.
const pendingCallID = "pending"

// Auth identifies the local user, used to resolve a call:start's
// caller/receiver ids into a Role (§4.3 rule 2).
type Auth struct {
	UserID string
}

// Config holds the coordinator's timing knobs, read from
// internal/config.Timeouts.
type Config struct {
	InviteTTL             time.Duration
	ConnectTimeout        time.Duration
	ListenerRetryAttempts int
	ListenerRetryInterval time.Duration
}

// SendInvitationRequest is the input to SendInvitation.
type SendInvitationRequest struct {
	ReceiverID   string
	ReceiverName string
	Metadata     map[string]any
}

// Coordinator is the Call Flow Coordinator (C3). It is safe for
// concurrent use: its own bookkeeping maps are guarded by mu, and the
// atoms it drives (store.Store) guard themselves.
type Coordinator struct {
	store    *store.Store
	binder   *signaling.Binder
	media    media.Adapter
	timeouts *timeout.Service
	history  *callhistory.Recorder // optional; nil disables persistence
	auth     Auth
	bus      *eventBus

	cfgMu sync.RWMutex
	cfg   Config

	mu            sync.Mutex
	inviteMapping map[string]string // inviteId -> callId | pendingCallID
	handledCalls  map[string]bool   // callId -> already promoted (L1)
}

// New wires a Coordinator from its already-constructed collaborators.
// history may be nil to disable call-history persistence entirely. The
// signaling.Binder is built internally, since the Coordinator itself is
// the signaling.Handler it dispatches to.
func New(st *store.Store, med media.Adapter, timeouts *timeout.Service, history *callhistory.Recorder, auth Auth, cfg Config) *Coordinator {
	c := &Coordinator{
		store:         st,
		media:         med,
		timeouts:      timeouts,
		history:       history,
		auth:          auth,
		cfg:           cfg,
		bus:           newEventBus(),
		inviteMapping: make(map[string]string),
		handledCalls:  make(map[string]bool),
	}
	c.binder = signaling.NewBinder(c, cfg.ListenerRetryAttempts, cfg.ListenerRetryInterval)
	return c
}

// Initialize brings up the media adapter and starts consuming its
// connect/disconnect events. Call once per process lifetime, before
// Reinitialize.
func (c *Coordinator) Initialize() error {
	if err := c.media.Initialize(); err != nil {
		return fmt.Errorf("callflow: initialize media adapter: %w", err)
	}
	go c.consumeMediaConnected()
	go c.consumeMediaDisconnected()
	return nil
}

// Reinitialize attaches (or re-attaches, after a reconnect) the
// signaling channel. Safe to call repeatedly — Binder.Attach replaces
// any previous subscription rather than stacking one.
func (c *Coordinator) Reinitialize(ch transport.Channel) {
	c.binder.Attach(ch)
}

// AttachWithRetry attaches the signaling channel returned by provider,
// retrying on a bounded schedule if it isn't ready yet (§6).
func (c *Coordinator) AttachWithRetry(provider signaling.ChannelProvider) error {
	return c.binder.AttachWithRetry(provider)
}

// UpdateConfig swaps in new timing tunables (invite TTL, connect
// timeout) without restarting the process, so a config file edit
// picked up by a fsnotify watcher takes effect for the next invitation
// or call rather than requiring a reattach. Timers already armed under
// the previous Config keep running on their original schedule. The
// listener-retry fields are not applied: the binder keeps the values
// given to New.
func (c *Coordinator) UpdateConfig(cfg Config) {
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
}

func (c *Coordinator) config() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// On registers a Notification subscriber for event, returning a handle
// for Off.
func (c *Coordinator) On(event string, fn func(Notification)) int { return c.bus.On(event, fn) }

// Off removes a subscriber previously registered with On.
func (c *Coordinator) Off(event string, id int) { c.bus.Off(event, id) }

// GetCurrentInvitation returns the current Invitation snapshot.
func (c *Coordinator) GetCurrentInvitation() store.Invitation { return c.store.Invitation() }

// GetCurrentCall returns the current ActiveCall snapshot.
func (c *Coordinator) GetCurrentCall() store.ActiveCall { return c.store.ActiveCall() }

// IsInCall reports whether ActiveCall is connecting or connected.
func (c *Coordinator) IsInCall() bool {
	call := c.store.ActiveCall()
	return call.Status == store.CallConnecting || call.Status == store.CallConnected
}

// SendInvitation starts an outgoing invitation. It fails if an
// invitation is already in progress or a call is already active.
func (c *Coordinator) SendInvitation(req SendInvitationRequest) (store.Invitation, error) {
	cur := c.store.Invitation()
	if !cur.IsZero() {
		return store.Invitation{}, ErrAlreadyInProgress
	}
	if c.IsInCall() {
		return store.Invitation{}, ErrAlreadyInCall
	}

	// localHandle keys the invitation-expiry timer only. The public
	// inviteId stays empty until the server assigns one via
	// invite:success (§3: "absent until confirmed by the server").
	localHandle := idgen.InviteID()
	expiresAt := time.Now().Add(c.config().InviteTTL)

	role := store.RoleSender
	status := store.InvitationInviting
	inv := c.store.SetInvitation(store.InvitationPatch{
		Role:           &role,
		Status:         &status,
		RemoteUserID:   &req.ReceiverID,
		RemoteUserName: &req.ReceiverName,
		ExpiresAt:      &expiresAt,
		Metadata:       req.Metadata,
	})

	if err := c.binder.Send(signaling.EventOutboundInvite, map[string]any{
		"callerId":   c.auth.UserID,
		"receiverId": req.ReceiverID,
		"metadata":   req.Metadata,
	}); err != nil {
		c.store.ResetInvitation()
		return store.Invitation{}, wrapSendErr("send invite", err)
	}

	c.timeouts.Arm(timeout.Key{Atom: "invitation", ID: localHandle}, expiresAt, func() {
		c.handleOutgoingInviteTimeout(localHandle, req.ReceiverID, expiresAt)
	})

	c.bus.emit(NotifyInvitationUpdated, inv)
	return inv, nil
}

// AcceptInvitation accepts the current incoming invitation, which must
// match inviteID (§4.3: "id matches" — guards against a stale caller
// racing a state change under §5's reentrancy model). The invitation
// atom is left in place (status incoming) until call:start promotes
// it — only the mapping records that acceptance happened, so a late
// invite:expired/cancelled for this id can no longer tear down a call
// once call:start arrives (I3). ActiveCall is set to connecting with
// the remote info copied from Invitation immediately, so a UI watching
// the store sees feedback before the server's call:start arrives.
func (c *Coordinator) AcceptInvitation(inviteID string) error {
	inv := c.store.Invitation()
	if inv.Status != store.InvitationIncoming {
		return ErrNoInvitation
	}
	if inv.InviteID != inviteID {
		return ErrInvitationMismatch
	}

	c.mu.Lock()
	c.inviteMapping[inv.InviteID] = pendingCallID
	c.mu.Unlock()

	c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: inv.InviteID})

	if err := c.binder.Send(signaling.EventOutboundAccept, map[string]any{
		"inviteId": inv.InviteID,
	}); err != nil {
		c.mu.Lock()
		delete(c.inviteMapping, inv.InviteID)
		c.mu.Unlock()
		return wrapSendErr("send invite:accept", err)
	}

	status := store.CallConnecting
	role := inv.Role
	remoteUserID := inv.RemoteUserID
	remoteUserName := inv.RemoteUserName
	historyID := inv.CallHistoryID
	call := c.store.SetActiveCall(store.ActiveCallPatch{
		Status:         &status,
		Role:           &role,
		RemoteUserID:   &remoteUserID,
		RemoteUserName: &remoteUserName,
		CallHistoryID:  &historyID,
	})
	c.bus.emit(NotifyCallUpdated, call)
	return nil
}

// DeclineInvitation declines the current incoming invitation, which
// must match inviteID.
func (c *Coordinator) DeclineInvitation(inviteID string) error {
	inv := c.store.Invitation()
	if inv.Status != store.InvitationIncoming {
		return ErrNoInvitation
	}
	if inv.InviteID != inviteID {
		return ErrInvitationMismatch
	}

	err := c.binder.Send(signaling.EventOutboundDecline, map[string]any{
		"inviteId": inv.InviteID,
	})

	c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: inv.InviteID})
	c.mu.Lock()
	delete(c.inviteMapping, inv.InviteID)
	c.mu.Unlock()
	cur := c.store.ResetInvitation()
	c.bus.emit(NotifyInvitationUpdated, cur)
	c.resetStuckConnectingCall()

	if err != nil {
		return wrapSendErr("send invite:decline", err)
	}
	return nil
}

// CancelInvitation cancels the caller's own outgoing invitation, which
// must match inviteID.
func (c *Coordinator) CancelInvitation(inviteID string) error {
	inv := c.store.Invitation()
	if inv.Status != store.InvitationInviting {
		return ErrNoInvitation
	}
	if inv.Role != store.RoleSender {
		return ErrRoleMismatch
	}
	if inv.InviteID != inviteID {
		return ErrInvitationMismatch
	}

	err := c.binder.Send(signaling.EventOutboundCancel, map[string]any{
		"inviteId": inv.InviteID,
	})

	c.timeouts.Cancel(timeout.Key{Atom: "invitation", ID: inv.InviteID})
	c.mu.Lock()
	delete(c.inviteMapping, inv.InviteID)
	c.mu.Unlock()
	cur := c.store.ResetInvitation()
	c.bus.emit(NotifyInvitationUpdated, cur)

	if err != nil {
		return wrapSendErr("send invite:cancel", err)
	}
	return nil
}

// EndCall ends the active call, locally and over signaling.
func (c *Coordinator) EndCall(reason string) error {
	call := c.store.ActiveCall()
	if call.IsZero() {
		return ErrNoActiveCall
	}

	err := c.binder.Send(signaling.EventOutboundCallEnd, map[string]any{
		"callId":  call.CallID,
		"reason":  reason,
		"endedBy": c.auth.UserID,
	})

	c.finishCall(call, reason, c.auth.UserID)

	if err != nil {
		return wrapSendErr("send call:end", err)
	}
	return nil
}

// resetStuckConnectingCall resets ActiveCall when it is connecting with
// no callId bound — the window AcceptInvitation opens between local
// acceptance and the server's call:start. Rule 4's second clause and
// the declineInvitation row both call for this (§4.3).
func (c *Coordinator) resetStuckConnectingCall() {
	call := c.store.ActiveCall()
	if call.Status != store.CallConnecting || call.CallID != "" {
		return
	}
	cur := c.store.ResetActiveCall()
	c.bus.emit(NotifyCallUpdated, cur)
}

// wrapSendErr normalizes a binder.Send failure into ErrNoChannel when
// the cause is an unattached channel, matching §7.1's error taxonomy,
// and wraps the underlying error otherwise.
func wrapSendErr(verb string, err error) error {
	if errors.Is(err, signaling.ErrNotAttached) {
		return fmt.Errorf("callflow: %s: %w", verb, ErrNoChannel)
	}
	return fmt.Errorf("callflow: %s: %w", verb, err)
}

// finishCall tears down timers, media, and persistence for call and
// resets ActiveCall. Shared by EndCall, HandleCallEnd, and the connect
// timeout / media-disconnected paths.
func (c *Coordinator) finishCall(call store.ActiveCall, reason, endedBy string) {
	c.timeouts.Cancel(timeout.Key{Atom: "call", ID: call.CallID})

	if err := c.media.Stop(call.CallID); err != nil {
		log.Printf("CALLFLOW: stop media for call %s: %v", call.CallID, err)
	}

	var inviteID string
	c.mu.Lock()
	for id, callID := range c.inviteMapping {
		if callID == call.CallID {
			inviteID = id
			delete(c.inviteMapping, id)
		}
	}
	c.mu.Unlock()

	if c.history != nil {
		rec := callhistory.Record{
			CallHistoryID:  call.CallHistoryID,
			CallID:         call.CallID,
			InviteID:       inviteID,
			RemoteUserID:   call.RemoteUserID,
			RemoteUserName: call.RemoteUserName,
			Role:           string(call.Role),
			StartedAt:      call.CallStartTime,
			EndedAt:        time.Now(),
			Reason:         reason,
			EndedBy:        endedBy,
		}
		if rec.CallHistoryID == "" {
			rec.CallHistoryID = call.CallID
		}
		if err := c.history.RecordEnded(rec); err != nil {
			log.Printf("CALLFLOW: record call history for %s: %v", call.CallID, err)
		}
	}

	cur := c.store.ResetActiveCall()
	c.bus.emit(NotifyCallEnded, call)
	c.bus.emit(NotifyCallUpdated, cur)
}

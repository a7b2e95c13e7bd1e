package store

import (
	"sync"
	"time"
)

// InvitationPatch carries the fields SetInvitation should overwrite. A nil
// field leaves the current value untouched — this is what §4.1 calls
// setInvitation(partial).
type InvitationPatch struct {
	InviteID             *string
	Role                 *Role
	Status               *InvitationStatus
	RemoteUserID         *string
	RemoteUserName       *string
	RemoteUserProfilePic *string
	ExpiresAt            *time.Time
	Metadata             map[string]any
	CallHistoryID        *string
}

// ActiveCallPatch carries the fields SetActiveCall should overwrite,
// supporting both "full" (every field set) and "partial" updates per §4.1.
type ActiveCallPatch struct {
	Status         *CallStatus
	CallID         *string
	Role           *Role
	RemoteUserID   *string
	RemoteUserName *string
	IsAudioEnabled *bool
	IsVideoEnabled *bool
	CallStartTime  *time.Time
	CallHistoryID  *string
}

// Store holds the Invitation and ActiveCall atoms behind one mutex and
// fans changes out to subscribers synchronously, in the order issued —
// modeled on the teacher stack's state.PeerTable.
type Store struct {
	mu sync.Mutex

	invitation    Invitation
	invitationSub []chan Invitation

	activeCall    ActiveCall
	activeCallSub []chan ActiveCall
}

// New returns a Store with both atoms at their idle zero value.
func New() *Store {
	return &Store{
		invitation: Invitation{Status: InvitationIdle, Role: RoleNone},
		activeCall: ActiveCall{Status: CallIdle},
	}
}

// Invitation returns the current Invitation snapshot.
func (s *Store) Invitation() Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invitation
}

// ActiveCall returns the current ActiveCall snapshot.
func (s *Store) ActiveCall() ActiveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCall
}

// SetInvitation applies a partial update to the Invitation atom and
// notifies subscribers with the resulting snapshot.
func (s *Store) SetInvitation(p InvitationPatch) Invitation {
	s.mu.Lock()
	cur := s.invitation
	if p.InviteID != nil {
		cur.InviteID = *p.InviteID
	}
	if p.Role != nil {
		cur.Role = *p.Role
	}
	if p.Status != nil {
		cur.Status = *p.Status
	}
	if p.RemoteUserID != nil {
		cur.RemoteUserID = *p.RemoteUserID
	}
	if p.RemoteUserName != nil {
		cur.RemoteUserName = *p.RemoteUserName
	}
	if p.RemoteUserProfilePic != nil {
		cur.RemoteUserProfilePic = *p.RemoteUserProfilePic
	}
	if p.ExpiresAt != nil {
		cur.ExpiresAt = *p.ExpiresAt
	}
	if p.Metadata != nil {
		cur.Metadata = p.Metadata
	}
	if p.CallHistoryID != nil {
		cur.CallHistoryID = *p.CallHistoryID
	}
	s.invitation = cur
	subs := append([]chan Invitation(nil), s.invitationSub...)
	s.mu.Unlock()

	notifyInvitation(subs, cur)
	return cur
}

// ResetInvitation clears the Invitation atom to its idle zero value (I6:
// no leakage of remote user info across sessions).
func (s *Store) ResetInvitation() Invitation {
	s.mu.Lock()
	s.invitation = Invitation{Status: InvitationIdle, Role: RoleNone}
	cur := s.invitation
	subs := append([]chan Invitation(nil), s.invitationSub...)
	s.mu.Unlock()

	notifyInvitation(subs, cur)
	return cur
}

// SetActiveCall applies an update (full or partial, per §4.1) to the
// ActiveCall atom and notifies subscribers.
func (s *Store) SetActiveCall(p ActiveCallPatch) ActiveCall {
	s.mu.Lock()
	cur := s.activeCall
	if p.Status != nil {
		cur.Status = *p.Status
	}
	if p.CallID != nil {
		cur.CallID = *p.CallID
	}
	if p.Role != nil {
		cur.Role = *p.Role
	}
	if p.RemoteUserID != nil {
		cur.RemoteUserID = *p.RemoteUserID
	}
	if p.RemoteUserName != nil {
		cur.RemoteUserName = *p.RemoteUserName
	}
	if p.IsAudioEnabled != nil {
		cur.IsAudioEnabled = *p.IsAudioEnabled
	}
	if p.IsVideoEnabled != nil {
		cur.IsVideoEnabled = *p.IsVideoEnabled
	}
	if p.CallStartTime != nil {
		cur.CallStartTime = *p.CallStartTime
	}
	if p.CallHistoryID != nil {
		cur.CallHistoryID = *p.CallHistoryID
	}
	s.activeCall = cur
	subs := append([]chan ActiveCall(nil), s.activeCallSub...)
	s.mu.Unlock()

	notifyActiveCall(subs, cur)
	return cur
}

// ResetActiveCall clears the ActiveCall atom to its idle zero value.
// ResetActiveCall never records call history — §9's resolved open
// question makes that an explicit, separate call at end-of-call.
func (s *Store) ResetActiveCall() ActiveCall {
	s.mu.Lock()
	s.activeCall = ActiveCall{Status: CallIdle}
	cur := s.activeCall
	subs := append([]chan ActiveCall(nil), s.activeCallSub...)
	s.mu.Unlock()

	notifyActiveCall(subs, cur)
	return cur
}

// SubscribeInvitation returns a channel that receives every Invitation
// snapshot from here on, starting with the current value (subscribers
// must observe the most recent value on subscription, per §4.1).
func (s *Store) SubscribeInvitation() (ch <-chan Invitation, cancel func()) {
	c := make(chan Invitation, 8)
	s.mu.Lock()
	s.invitationSub = append(s.invitationSub, c)
	cur := s.invitation
	s.mu.Unlock()

	c <- cur
	return c, func() { s.unsubscribeInvitation(c) }
}

func (s *Store) unsubscribeInvitation(c chan Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.invitationSub {
		if sub == c {
			s.invitationSub = append(s.invitationSub[:i], s.invitationSub[i+1:]...)
			close(c)
			return
		}
	}
}

// SubscribeActiveCall returns a channel that receives every ActiveCall
// snapshot from here on, starting with the current value.
func (s *Store) SubscribeActiveCall() (ch <-chan ActiveCall, cancel func()) {
	c := make(chan ActiveCall, 8)
	s.mu.Lock()
	s.activeCallSub = append(s.activeCallSub, c)
	cur := s.activeCall
	s.mu.Unlock()

	c <- cur
	return c, func() { s.unsubscribeActiveCall(c) }
}

func (s *Store) unsubscribeActiveCall(c chan ActiveCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.activeCallSub {
		if sub == c {
			s.activeCallSub = append(s.activeCallSub[:i], s.activeCallSub[i+1:]...)
			close(c)
			return
		}
	}
}

func notifyInvitation(subs []chan Invitation, v Invitation) {
	for _, c := range subs {
		select {
		case c <- v:
		default:
		}
	}
}

func notifyActiveCall(subs []chan ActiveCall, v ActiveCall) {
	for _, c := range subs {
		select {
		case c <- v:
		default:
		}
	}
}

package store

import (
	"reflect"
	"testing"
	"time"
)

func strp(s string) *string { return &s }
func statusp(s InvitationStatus) *InvitationStatus { return &s }
func rolep(r Role) *Role { return &r }

func TestResetInvitationClearsAllFields(t *testing.T) {
	s := New()
	s.SetInvitation(InvitationPatch{
		InviteID:       strp("i1"),
		Role:           rolep(RoleSender),
		Status:         statusp(InvitationInviting),
		RemoteUserID:   strp("u2"),
		RemoteUserName: strp("Bob"),
	})

	s.ResetInvitation()
	got := s.Invitation()
	if !reflect.DeepEqual(got, Invitation{Status: InvitationIdle, Role: RoleNone}) {
		t.Fatalf("expected zero invitation, got %+v", got)
	}
}

func TestSubscribeInvitationSeesCurrentValueImmediately(t *testing.T) {
	s := New()
	s.SetInvitation(InvitationPatch{Status: statusp(InvitationInviting), Role: rolep(RoleSender)})

	ch, cancel := s.SubscribeInvitation()
	defer cancel()

	select {
	case v := <-ch:
		if v.Status != InvitationInviting {
			t.Fatalf("expected inviting, got %v", v.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}
}

func TestSubscribeActiveCallReceivesUpdatesInOrder(t *testing.T) {
	s := New()
	ch, cancel := s.SubscribeActiveCall()
	defer cancel()

	<-ch // initial idle snapshot

	connecting := CallConnecting
	connected := CallConnected
	s.SetActiveCall(ActiveCallPatch{Status: &connecting})
	s.SetActiveCall(ActiveCallPatch{Status: &connected})

	first := <-ch
	second := <-ch
	if first.Status != CallConnecting || second.Status != CallConnected {
		t.Fatalf("expected connecting then connected, got %v then %v", first.Status, second.Status)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := New()
	ch, cancel := s.SubscribeInvitation()
	<-ch
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestResetActiveCallClearsToIdle(t *testing.T) {
	s := New()
	connected := CallConnected
	callID := "c1"
	s.SetActiveCall(ActiveCallPatch{Status: &connected, CallID: &callID})

	s.ResetActiveCall()
	got := s.ActiveCall()
	if got.Status != CallIdle || got.CallID != "" {
		t.Fatalf("expected idle/cleared active call, got %+v", got)
	}
}

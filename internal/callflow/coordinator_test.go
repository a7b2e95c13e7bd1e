package callflow

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/callflow/coordinator/internal/media"
	"github.com/callflow/coordinator/internal/signaling"
	"github.com/callflow/coordinator/internal/store"
	"github.com/callflow/coordinator/internal/timeout"
	"github.com/callflow/coordinator/internal/transport"
)

func newTestCoordinator(t *testing.T, userID string) (*Coordinator, *transport.LoopbackChannel, *media.FakeAdapter) {
	t.Helper()
	st := store.New()
	fake := media.NewFakeAdapter()
	cfg := Config{
		InviteTTL:             150 * time.Millisecond,
		ConnectTimeout:        150 * time.Millisecond,
		ListenerRetryAttempts: 3,
		ListenerRetryInterval: time.Millisecond,
	}
	coord := New(st, fake, timeout.NewService(), nil, Auth{UserID: userID}, cfg)
	if err := coord.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_, clientSide := transport.NewLoopbackPair()
	coord.Reinitialize(clientSide)
	return coord, clientSide, fake
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func inject(t *testing.T, ch *transport.LoopbackChannel, event string, payload any) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	ch.Inject(transport.Envelope{Event: event, Payload: b})
}

func lastSentEvent(ch *transport.LoopbackChannel) string {
	sent := ch.Sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1].Event
}

// Happy-path direct call: send an invitation, receive its promotion to
// a call, and bring the media layer up.
func TestHappyDirectCall(t *testing.T) {
	coord, ch, fake := newTestCoordinator(t, "alice")

	inv, err := coord.SendInvitation(SendInvitationRequest{ReceiverID: "bob", ReceiverName: "Bob"})
	if err != nil {
		t.Fatalf("SendInvitation: %v", err)
	}
	if inv.Status != store.InvitationInviting {
		t.Fatalf("expected inviting, got %v", inv.Status)
	}
	if lastSentEvent(ch) != signaling.EventOutboundInvite {
		t.Fatalf("expected invite sent, got %q", lastSentEvent(ch))
	}

	inject(t, ch, signaling.EventCallStart, signaling.CallStart{
		CallID: "c1", CallerID: "alice", ReceiverID: "bob",
	})

	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().Status == store.CallConnecting
	})
	if !coord.GetCurrentInvitation().IsZero() {
		t.Fatal("expected invitation to be cleared on promotion")
	}

	fake.SimulateConnected("c1")
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().Status == store.CallConnected
	})

	if err := coord.EndCall("hangup"); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if !coord.GetCurrentCall().IsZero() {
		t.Fatal("expected call to be reset after EndCall")
	}
	if lastSentEvent(ch) != signaling.EventOutboundCallEnd {
		t.Fatalf("expected call:end sent, got %q", lastSentEvent(ch))
	}
}

// A receiver declines an incoming invitation.
func TestDeclinedInvitation(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "bob")

	inject(t, ch, signaling.EventInviteIncoming, signaling.InviteIncoming{
		InviteID: "i1", CallerID: "alice", CallerName: "Alice",
		ExpiresAt: signaling.FlexTime(time.Now().Add(time.Minute)),
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().Status == store.InvitationIncoming
	})

	if err := coord.DeclineInvitation("i1"); err != nil {
		t.Fatalf("DeclineInvitation: %v", err)
	}
	if !coord.GetCurrentInvitation().IsZero() {
		t.Fatal("expected invitation to be cleared after decline")
	}
	if lastSentEvent(ch) != signaling.EventOutboundDecline {
		t.Fatalf("expected invite:decline sent, got %q", lastSentEvent(ch))
	}
}

// Anti-tear-down: once an accepted invitation is promoted to a call, a
// late invite:expired for the same inviteId must not touch the call.
func TestAntiTearDownAfterPromotion(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "bob")

	inject(t, ch, signaling.EventInviteIncoming, signaling.InviteIncoming{
		InviteID: "i1", CallerID: "alice", CallerName: "Alice",
		ExpiresAt: signaling.FlexTime(time.Now().Add(time.Minute)),
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().Status == store.InvitationIncoming
	})

	if err := coord.AcceptInvitation("i1"); err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if call := coord.GetCurrentCall(); call.Status != store.CallConnecting || call.CallID != "" {
		t.Fatalf("expected connecting with no callId right after accept, got %+v", call)
	}

	inject(t, ch, signaling.EventCallStart, signaling.CallStart{
		CallID: "c1", CallerID: "alice", ReceiverID: "bob",
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().CallID == "c1"
	})

	// Late expiry for the invite that has already become call c1.
	inject(t, ch, signaling.EventInviteExpired, signaling.InviteExpired{InviteID: "i1"})

	time.Sleep(30 * time.Millisecond)
	if coord.GetCurrentCall().CallID != "c1" || coord.GetCurrentCall().Status != store.CallConnecting {
		t.Fatalf("expected call c1 to survive stale invite:expired, got %+v", coord.GetCurrentCall())
	}
}

// call:start is idempotent: a duplicate delivery for the same callId
// must not re-run promotion or re-sync the media adapter.
func TestDuplicateCallStartIsIdempotent(t *testing.T) {
	coord, ch, fake := newTestCoordinator(t, "alice")

	start := signaling.CallStart{CallID: "c1", CallerID: "alice", ReceiverID: "bob"}
	inject(t, ch, signaling.EventCallStart, start)
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().Status == store.CallConnecting
	})

	fake.SimulateConnected("c1")
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().Status == store.CallConnected
	})

	inject(t, ch, signaling.EventCallStart, start)
	time.Sleep(30 * time.Millisecond)

	if len(fake.SyncedSnapshots()) != 1 {
		t.Fatalf("expected exactly one media sync, got %d", len(fake.SyncedSnapshots()))
	}
	if coord.GetCurrentCall().Status != store.CallConnected {
		t.Fatalf("expected call to remain connected, got %v", coord.GetCurrentCall().Status)
	}
}

// A call stuck in "connecting" past the connect timeout is ended
// locally and reported to the remote side.
func TestConnectTimeoutEndsCall(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "alice")

	inject(t, ch, signaling.EventCallStart, signaling.CallStart{
		CallID: "c1", CallerID: "alice", ReceiverID: "bob",
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().Status == store.CallConnecting
	})

	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().IsZero()
	})
	if lastSentEvent(ch) != signaling.EventOutboundCallEnd {
		t.Fatalf("expected call:end sent on connect timeout, got %q", lastSentEvent(ch))
	}
}

// Decline-wins race: a decline arriving after a local accept, but
// before call:start promotes the invitation, must still clear it.
func TestDeclineWinsRaceBeforePromotion(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "bob")

	inject(t, ch, signaling.EventInviteIncoming, signaling.InviteIncoming{
		InviteID: "i1", CallerID: "alice", CallerName: "Alice",
		ExpiresAt: signaling.FlexTime(time.Now().Add(time.Minute)),
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().Status == store.InvitationIncoming
	})

	if err := coord.AcceptInvitation("i1"); err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if coord.GetCurrentCall().Status != store.CallConnecting {
		t.Fatalf("expected ActiveCall connecting right after accept, got %v", coord.GetCurrentCall().Status)
	}

	inject(t, ch, signaling.EventInviteDeclined, signaling.InviteDeclined{InviteID: "i1"})

	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().IsZero()
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentCall().IsZero()
	})
}

// The client-side invitation-expiry safety net fires even if the
// server's own invite:expired event never arrives.
func TestLocalInviteExpirySafetyNet(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, "alice")

	inv, sendErr := coord.SendInvitation(SendInvitationRequest{ReceiverID: "bob"})
	if sendErr != nil {
		t.Fatalf("SendInvitation: %v", sendErr)
	}
	if inv.Status != store.InvitationInviting {
		t.Fatalf("expected inviting, got %v", inv.Status)
	}

	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().IsZero()
	})
}

// A match-flow invitation whose metadata requests auto-accept is
// accepted without any caller interaction.
func TestAutoAcceptMatchFlow(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "bob")

	inject(t, ch, signaling.EventInviteIncoming, signaling.InviteIncoming{
		InviteID: "i1", CallerID: "alice", CallerName: "Alice",
		Metadata:  map[string]any{"autoAccept": true},
		ExpiresAt: signaling.FlexTime(time.Now().Add(time.Minute)),
	})

	waitUntil(t, time.Second, func() bool {
		return lastSentEvent(ch) == signaling.EventOutboundAccept
	})
}

// invite:success assigns the server-confirmed inviteId onto the
// sender's Invitation, which has none of its own until then (§3).
func TestInviteSuccessAssignsInviteID(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "alice")

	inv, err := coord.SendInvitation(SendInvitationRequest{ReceiverID: "bob", ReceiverName: "Bob"})
	if err != nil {
		t.Fatalf("SendInvitation: %v", err)
	}
	if inv.InviteID != "" {
		t.Fatalf("expected empty inviteId before invite:success, got %q", inv.InviteID)
	}

	inject(t, ch, signaling.EventInviteSuccess, signaling.InviteSuccess{
		InviteID: "i1", ReceiverID: "bob",
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().InviteID == "i1"
	})
}

// A duplicate invite:incoming for an invitation already known (or
// already accepted) is ignored, not declined back to the server (§8).
func TestDuplicateInviteIncomingIgnored(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "bob")

	inject(t, ch, signaling.EventInviteIncoming, signaling.InviteIncoming{
		InviteID: "i1", CallerID: "alice", CallerName: "Alice",
		ExpiresAt: signaling.FlexTime(time.Now().Add(time.Minute)),
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().Status == store.InvitationIncoming
	})

	if err := coord.AcceptInvitation("i1"); err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}

	// Retransmission of the same invite after it has already been
	// accepted (and the Invitation atom reset by promotion would also
	// hit this path, but here it hasn't promoted yet either way).
	inject(t, ch, signaling.EventInviteIncoming, signaling.InviteIncoming{
		InviteID: "i1", CallerID: "alice", CallerName: "Alice",
		ExpiresAt: signaling.FlexTime(time.Now().Add(time.Minute)),
	})
	time.Sleep(30 * time.Millisecond)

	if lastSentEvent(ch) == signaling.EventOutboundDecline {
		t.Fatal("expected duplicate invite:incoming not to be declined")
	}
	if call := coord.GetCurrentCall(); call.Status != store.CallConnecting {
		t.Fatalf("expected call still connecting after duplicate invite, got %+v", call)
	}
}

// Operations guarding against a stale inviteId (§5's reentrancy model)
// fail with ErrInvitationMismatch rather than silently acting on
// whatever the current invitation happens to be.
func TestInviteIDMismatchRejected(t *testing.T) {
	coord, ch, _ := newTestCoordinator(t, "bob")

	inject(t, ch, signaling.EventInviteIncoming, signaling.InviteIncoming{
		InviteID: "i1", CallerID: "alice", CallerName: "Alice",
		ExpiresAt: signaling.FlexTime(time.Now().Add(time.Minute)),
	})
	waitUntil(t, time.Second, func() bool {
		return coord.GetCurrentInvitation().Status == store.InvitationIncoming
	})

	if err := coord.AcceptInvitation("stale-id"); !errors.Is(err, ErrInvitationMismatch) {
		t.Fatalf("expected ErrInvitationMismatch, got %v", err)
	}
	if err := coord.DeclineInvitation("stale-id"); !errors.Is(err, ErrInvitationMismatch) {
		t.Fatalf("expected ErrInvitationMismatch, got %v", err)
	}
}

// Sending on a coordinator with no attached channel fails with
// ErrNoChannel, matching the documented error taxonomy (§7.1).
func TestSendInvitationNoChannel(t *testing.T) {
	st := store.New()
	fake := media.NewFakeAdapter()
	cfg := Config{InviteTTL: time.Second, ConnectTimeout: time.Second}
	coord := New(st, fake, timeout.NewService(), nil, Auth{UserID: "alice"}, cfg)
	if err := coord.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := coord.SendInvitation(SendInvitationRequest{ReceiverID: "bob"})
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
}

package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoopbackPairDeliversSentEnvelopes(t *testing.T) {
	a, b := NewLoopbackPair()
	defer a.Close()
	defer b.Close()

	sub, cancel := b.Subscribe()
	defer cancel()

	if err := a.Send("invite", map[string]string{"receiverId": "u2"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case env := <-sub:
		if env.Event != "invite" {
			t.Fatalf("expected invite event, got %s", env.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestLoopbackInjectBypassesPeer(t *testing.T) {
	a, b := NewLoopbackPair()
	defer a.Close()
	defer b.Close()

	sub, cancel := a.Subscribe()
	defer cancel()

	a.Inject(Envelope{Event: "invite:expired", Payload: []byte(`{"inviteId":"i1"}`)})

	select {
	case env := <-sub:
		if env.Event != "invite:expired" {
			t.Fatalf("expected invite:expired, got %s", env.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for injected envelope")
	}
}

func TestHubRelaysBetweenTwoClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	aliceConn, err := Dial(wsURL + "?user=alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer aliceConn.Close()

	bobConn, err := Dial(wsURL + "?user=bob")
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bobConn.Close()

	bobSub, cancel := bobConn.Subscribe()
	defer cancel()

	// Give the hub a moment to register both connections before sending.
	time.Sleep(50 * time.Millisecond)

	if err := aliceConn.Send("invite", map[string]string{"receiverId": "bob"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case env := <-bobSub:
		if env.Event != "invite" {
			t.Fatalf("expected invite, got %s", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed envelope")
	}
}

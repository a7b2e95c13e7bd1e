package incoming

import (
	"encoding/json"
	"testing"

	"github.com/callflow/coordinator/internal/signaling"
)

type recordingHandler struct {
	calls []signaling.InviteIncoming
}

func (h *recordingHandler) HandleInviteIncoming(p signaling.InviteIncoming) { h.calls = append(h.calls, p) }
func (h *recordingHandler) HandleInviteSuccess(signaling.InviteSuccess)     {}
func (h *recordingHandler) HandleInviteError(signaling.InviteError)         {}
func (h *recordingHandler) HandleInviteDeclined(signaling.InviteDeclined)   {}
func (h *recordingHandler) HandleInviteCancelled(signaling.InviteCancelled) {}
func (h *recordingHandler) HandleInviteExpired(signaling.InviteExpired)     {}
func (h *recordingHandler) HandleCallStart(signaling.CallStart)             {}
func (h *recordingHandler) HandleCallEnd(signaling.CallEnd)                 {}

func TestDeliverIncomingInvitationDispatchesOnce(t *testing.T) {
	h := &recordingHandler{}
	f := New(h)

	raw, _ := json.Marshal(signaling.InviteIncoming{InviteID: "i1", CallerID: "alice"})
	if err := f.DeliverIncomingInvitation(raw); err != nil {
		t.Fatalf("DeliverIncomingInvitation: %v", err)
	}
	if err := f.DeliverIncomingInvitation(raw); err != nil {
		t.Fatalf("DeliverIncomingInvitation (duplicate): %v", err)
	}

	if len(h.calls) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(h.calls))
	}
}

func TestDeliverIncomingInvitationRejectsMalformed(t *testing.T) {
	h := &recordingHandler{}
	f := New(h)

	raw, _ := json.Marshal(signaling.InviteIncoming{InviteID: "i1"}) // missing callerId
	if err := f.DeliverIncomingInvitation(raw); err == nil {
		t.Fatal("expected error for missing callerId")
	}
	if len(h.calls) != 0 {
		t.Fatal("expected no dispatch for invalid payload")
	}
}

func TestForgetAllowsRedelivery(t *testing.T) {
	h := &recordingHandler{}
	f := New(h)

	raw, _ := json.Marshal(signaling.InviteIncoming{InviteID: "i1", CallerID: "alice"})
	_ = f.DeliverIncomingInvitation(raw)
	f.Forget("i1")
	_ = f.DeliverIncomingInvitation(raw)

	if len(h.calls) != 2 {
		t.Fatalf("expected redelivery after Forget, got %d calls", len(h.calls))
	}
}

package incoming

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/callflow/coordinator/internal/signaling"
)

// Facade accepts invitations delivered outside the signaling channel —
// a push payload handed to the process before the websocket has
// reconnected — and hands them to the same Handler the signaling
// binder dispatches to.
type Facade struct {
	handler signaling.Handler

	mu        sync.Mutex
	delivered map[string]struct{}
}

// New returns a Facade that forwards validated invitations to handler
// (in practice, a *callflow.Coordinator).
func New(handler signaling.Handler) *Facade {
	return &Facade{
		handler:   handler,
		delivered: make(map[string]struct{}),
	}
}

// DeliverIncomingInvitation decodes and validates raw as an
// invite:incoming payload and dispatches it to the handler. A second
// delivery for the same inviteId — whether from another push or from
// the signaling channel catching up afterward — is a no-op.
func (f *Facade) DeliverIncomingInvitation(raw json.RawMessage) error {
	var payload signaling.InviteIncoming
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("incoming: decode invite:incoming: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("incoming: invalid invite:incoming: %w", err)
	}

	f.mu.Lock()
	if _, seen := f.delivered[payload.InviteID]; seen {
		f.mu.Unlock()
		return nil
	}
	f.delivered[payload.InviteID] = struct{}{}
	f.mu.Unlock()

	f.handler.HandleInviteIncoming(payload)
	return nil
}

// Forget drops the dedup record for inviteID, e.g. once the invitation
// has been resolved (accepted/declined/expired) and its id could
// plausibly be reused far in the future. Safe to never call; the map
// only grows with the number of distinct invitations ever delivered
// through this facade.
func (f *Facade) Forget(inviteID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.delivered, inviteID)
}

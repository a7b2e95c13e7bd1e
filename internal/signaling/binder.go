package signaling

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/callflow/coordinator/internal/transport"
)

// ErrNotAttached is returned by Send when no channel has been attached yet.
var ErrNotAttached = errors.New("signaling: channel not attached")

// Handler receives typed, validated inbound events. callflow.Coordinator
// implements this interface.
type Handler interface {
	HandleInviteIncoming(InviteIncoming)
	HandleInviteSuccess(InviteSuccess)
	HandleInviteError(InviteError)
	HandleInviteDeclined(InviteDeclined)
	HandleInviteCancelled(InviteCancelled)
	HandleInviteExpired(InviteExpired)
	HandleCallStart(CallStart)
	HandleCallEnd(CallEnd)
}

// ChannelProvider opens (or returns an existing) transport.Channel. Used
// by AttachWithRetry when the channel may not be ready yet.
type ChannelProvider func() (transport.Channel, error)

// Binder subscribes to one transport.Channel at a time and dispatches
// validated events to a Handler. Re-attaching (e.g. after a reconnect)
// idempotently replaces the previous subscription — it never stacks a
// second one, mirroring the single dispatchLoop in the teacher stack's
// call/manager.go and realtime/manager.go.
type Binder struct {
	handler Handler

	retryAttempts int
	retryInterval time.Duration

	mu     sync.Mutex
	ch     transport.Channel
	cancel func()
}

// NewBinder returns a Binder that will retry channel attachment up to
// retryAttempts times, retryInterval apart, per §6's listener-attach
// retry constants.
func NewBinder(handler Handler, retryAttempts int, retryInterval time.Duration) *Binder {
	return &Binder{
		handler:       handler,
		retryAttempts: retryAttempts,
		retryInterval: retryInterval,
	}
}

// Attach subscribes to ch, cancelling and replacing any previous
// subscription first.
func (b *Binder) Attach(ch transport.Channel) {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	sub, cancel := ch.Subscribe()
	b.ch = ch
	b.cancel = cancel
	b.mu.Unlock()

	go b.readLoop(sub)
}

// AttachWithRetry calls provider on a bounded schedule until it succeeds,
// then Attaches. Used at startup, when the signaling channel may not be
// ready yet. Send does not retry: with no channel attached it returns
// ErrNotAttached.
func (b *Binder) AttachWithRetry(provider ChannelProvider) error {
	var lastErr error
	for attempt := 1; attempt <= b.retryAttempts; attempt++ {
		ch, err := provider()
		if err == nil {
			b.Attach(ch)
			return nil
		}
		lastErr = err
		if attempt < b.retryAttempts {
			time.Sleep(b.retryInterval)
		}
	}
	return fmt.Errorf("signaling: attach channel after %d attempts: %w", b.retryAttempts, lastErr)
}

// Detach tears down the current subscription without replacing it.
func (b *Binder) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.ch = nil
}

// Send emits an outbound event on the currently-attached channel.
func (b *Binder) Send(event string, payload any) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	if ch == nil {
		return ErrNotAttached
	}
	return ch.Send(event, payload)
}

func (b *Binder) readLoop(sub <-chan transport.Envelope) {
	for env := range sub {
		b.dispatch(env)
	}
}

func (b *Binder) dispatch(env transport.Envelope) {
	switch env.Event {
	case EventInviteIncoming:
		dispatchTyped(env, b.handler.HandleInviteIncoming)
	case EventInviteSuccess:
		dispatchTyped(env, b.handler.HandleInviteSuccess)
	case EventInviteError:
		dispatchTyped(env, b.handler.HandleInviteError)
	case EventInviteDeclined:
		dispatchTyped(env, b.handler.HandleInviteDeclined)
	case EventInviteCancelled:
		dispatchTyped(env, b.handler.HandleInviteCancelled)
	case EventInviteExpired:
		dispatchTyped(env, b.handler.HandleInviteExpired)
	case EventCallStart:
		dispatchTyped(env, b.handler.HandleCallStart)
	case EventCallEnd:
		dispatchTyped(env, b.handler.HandleCallEnd)
	default:
		log.Printf("SIGNALING: dropping unknown event %q", env.Event)
	}
}

// validator is implemented by every event payload struct.
type validator interface {
	Validate() error
}

// dispatchTyped decodes env's payload into T, validates it, and calls fn.
// Malformed events are dropped with a warning (§4.2's payload validation).
func dispatchTyped[T validator](env transport.Envelope, fn func(T)) {
	var payload T
	if err := transport.DecodePayload(env, &payload); err != nil {
		log.Printf("SIGNALING: malformed %s payload: %v", env.Event, err)
		return
	}
	if err := payload.Validate(); err != nil {
		log.Printf("SIGNALING: invalid %s payload: %v", env.Event, err)
		return
	}
	fn(payload)
}

package transport

import "encoding/json"

// Envelope is one named event crossing the signaling channel — the wire
// shape tabulated in spec §4.2. Payload is kept raw so the signaling
// binder owns decoding and validation into typed events.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is the narrow, transport-agnostic surface the rest of this
// module needs from the bidirectional signaling channel (§1's "signaling
// transport is abstracted as an emitter/subscriber of named events").
type Channel interface {
	// Send emits a named outbound event. payload is marshaled to JSON.
	Send(event string, payload any) error
	// Subscribe returns a channel of inbound envelopes in receipt order,
	// and a cancel func that unsubscribes and releases resources.
	Subscribe() (<-chan Envelope, func())
	// Closed is closed when the underlying transport disconnects.
	Closed() <-chan struct{}
	// Close tears down the channel.
	Close() error
}

// MarshalEnvelope builds an Envelope ready to send for event/payload.
func MarshalEnvelope(event string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Payload: b}, nil
}

package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Upgrader mirrors the teacher stack's viewer/routes/call.go upgrader:
// generous buffers, origin checks left to the caller (a webview/local
// client in the teacher stack, a configured allowlist in a real
// deployment).
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSChannel implements Channel over a gorilla/websocket connection. It
// owns a single read pump that decodes inbound frames into Envelopes and
// fans them out to subscribers — modeled on realtime.Manager's
// forwardGroupEvents dispatch loop.
type WSChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[chan Envelope]struct{}

	closed chan struct{}
	once   sync.Once
}

// NewWSChannel wraps an already-established *websocket.Conn (either a
// client connection from Dial, or a server-accepted connection from
// Upgrader.Upgrade) and starts its read pump.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{
		conn:   conn,
		subs:   make(map[chan Envelope]struct{}),
		closed: make(chan struct{}),
	}
	go c.readPump()
	return c
}

// Dial connects to a signaling server at url and returns a ready channel.
func Dial(url string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling channel: %w", err)
	}
	return NewWSChannel(conn), nil
}

func (c *WSChannel) Send(event string, payload any) error {
	env, err := MarshalEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *WSChannel) Subscribe() (<-chan Envelope, func()) {
	ch := make(chan Envelope, 32)

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *WSChannel) Closed() <-chan struct{} { return c.closed }

func (c *WSChannel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.subMu.Lock()
		for ch := range c.subs {
			close(ch)
		}
		c.subs = nil
		c.subMu.Unlock()
	})
	return c.conn.Close()
}

func (c *WSChannel) readPump() {
	defer c.Close()

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("SIGNALING: read error: %v", err)
			}
			return
		}
		c.broadcast(env)
	}
}

func (c *WSChannel) broadcast(env Envelope) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- env:
		default:
			log.Printf("SIGNALING: subscriber backpressure, dropping %s", env.Event)
		}
	}
}

// decodePayload is a small helper shared by the signaling binder to
// unmarshal an Envelope's raw payload into a typed struct.
func decodePayload(env Envelope, into any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("event %s: empty payload", env.Event)
	}
	return json.Unmarshal(env.Payload, into)
}

// DecodePayload exposes decodePayload for other packages in this module.
func DecodePayload(env Envelope, into any) error { return decodePayload(env, into) }

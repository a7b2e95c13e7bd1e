package transport

import (
	"log"
	"net/http"
	"sync"
)

// Hub is a minimal two-party signaling relay: each connection identifies
// itself with a "user" query parameter, and every envelope it sends is
// forwarded verbatim to its current counterpart. It exists only to make
// cmd/callflowd runnable end-to-end for local demos and manual testing —
// spec §1 explicitly puts real server-side session brokering (id
// assignment, invitation bookkeeping, expiry enforcement) out of scope,
// so Hub does none of that; it is wire plumbing, not a signaling server.
type Hub struct {
	mu    sync.Mutex
	peers map[string]*WSChannel
}

// NewHub returns an empty relay hub.
func NewHub() *Hub {
	return &Hub{peers: make(map[string]*WSChannel)}
}

// ServeHTTP upgrades the request to a WebSocket and registers it under
// the "user" query parameter, replacing any prior connection for that
// user.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user query parameter", http.StatusBadRequest)
		return
	}

	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("SIGNALING: upgrade failed for %s: %v", user, err)
		return
	}

	ch := NewWSChannel(conn)

	h.mu.Lock()
	h.peers[user] = ch
	h.mu.Unlock()

	log.Printf("SIGNALING: %s connected", user)

	sub, cancel := ch.Subscribe()
	defer cancel()

	for {
		select {
		case env, ok := <-sub:
			if !ok {
				return
			}
			h.relay(user, env)
		case <-ch.Closed():
			h.mu.Lock()
			if h.peers[user] == ch {
				delete(h.peers, user)
			}
			h.mu.Unlock()
			log.Printf("SIGNALING: %s disconnected", user)
			return
		}
	}
}

// relay forwards env to every other currently-connected peer. The
// reference use case is exactly two parties, but broadcasting to "all
// but sender" keeps the hub usable for manual multi-client testing.
func (h *Hub) relay(from string, env Envelope) {
	h.mu.Lock()
	targets := make([]*WSChannel, 0, len(h.peers))
	for user, ch := range h.peers {
		if user != from {
			targets = append(targets, ch)
		}
	}
	h.mu.Unlock()

	for _, ch := range targets {
		if err := ch.Send(env.Event, env.Payload); err != nil {
			log.Printf("SIGNALING: relay %s failed: %v", env.Event, err)
		}
	}
}

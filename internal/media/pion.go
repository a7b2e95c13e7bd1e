package media

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// PionAdapter drives a real webrtc.PeerConnection per call up to the
// connected/disconnected edge the coordinator observes. It does not
// negotiate SDP itself — that belongs to the out-of-scope media
// negotiation protocol (§1) the signaling channel carries independently
// of this module — it only tracks connection state, exactly the part
// of call/session.go's initExternalPC the coordinator needs.
type PionAdapter struct {
	iceServers []webrtc.ICEServer

	mu  sync.Mutex
	pcs map[string]*webrtc.PeerConnection

	connected    chan string
	disconnected chan string
}

// NewPionAdapter returns an adapter using the given STUN/TURN servers.
// A nil or empty list defaults to the public Google STUN server, as the
// teacher stack does.
func NewPionAdapter(iceServers []webrtc.ICEServer) *PionAdapter {
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return &PionAdapter{
		iceServers:   iceServers,
		pcs:          make(map[string]*webrtc.PeerConnection),
		connected:    make(chan string, 8),
		disconnected: make(chan string, 8),
	}
}

func (a *PionAdapter) Initialize() error {
	log.Printf("MEDIA: adapter initialized")
	return nil
}

func (a *PionAdapter) Connected() <-chan string    { return a.connected }
func (a *PionAdapter) Disconnected() <-chan string { return a.disconnected }

// SyncState creates (or replaces) the PeerConnection expected to carry
// callID's media, with recvonly transceivers so a remote offer/answer
// always has valid m-lines — mirroring call/media_common.go's
// addRecvOnlyTransceivers, since this adapter never captures local
// camera/mic (out of scope, see DESIGN.md).
func (a *PionAdapter) SyncState(snap Snapshot) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: a.iceServers})
	if err != nil {
		return fmt.Errorf("media[%s]: create peer connection: %w", snap.CallID, err)
	}

	if err := addRecvOnlyTransceivers(pc, snap.IsVideoEnabled); err != nil {
		pc.Close()
		return fmt.Errorf("media[%s]: add transceivers: %w", snap.CallID, err)
	}

	callID := snap.CallID
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("MEDIA [%s]: PC state -> %s", callID, state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			select {
			case a.connected <- callID:
			default:
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			select {
			case a.disconnected <- callID:
			default:
			}
		}
	})

	a.mu.Lock()
	if old, ok := a.pcs[callID]; ok {
		old.Close()
	}
	a.pcs[callID] = pc
	a.mu.Unlock()

	return nil
}

// Stop closes and forgets the PeerConnection for callID. Idempotent.
func (a *PionAdapter) Stop(callID string) error {
	a.mu.Lock()
	pc, ok := a.pcs[callID]
	if ok {
		delete(a.pcs, callID)
	}
	a.mu.Unlock()

	if !ok {
		return nil
	}
	return pc.Close()
}

func addRecvOnlyTransceivers(pc *webrtc.PeerConnection, video bool) error {
	if video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	return nil
}

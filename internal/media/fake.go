package media

import "sync"

// FakeAdapter is a manually-triggered Adapter for tests that need
// deterministic control over when media "connects" or "disconnects",
// without a real PeerConnection.
type FakeAdapter struct {
	mu     sync.Mutex
	synced []Snapshot

	connected    chan string
	disconnected chan string
}

// NewFakeAdapter returns a ready FakeAdapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		connected:    make(chan string, 8),
		disconnected: make(chan string, 8),
	}
}

func (f *FakeAdapter) Initialize() error { return nil }

func (f *FakeAdapter) SyncState(snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, snap)
	return nil
}

func (f *FakeAdapter) Connected() <-chan string    { return f.connected }
func (f *FakeAdapter) Disconnected() <-chan string { return f.disconnected }

func (f *FakeAdapter) Stop(callID string) error { return nil }

// SimulateConnected fires a Connected event for callID, as if the real
// peer connection had just reached the connected state.
func (f *FakeAdapter) SimulateConnected(callID string) {
	f.connected <- callID
}

// SimulateDisconnected fires a Disconnected event for callID.
func (f *FakeAdapter) SimulateDisconnected(callID string) {
	f.disconnected <- callID
}

// SyncedSnapshots returns every Snapshot passed to SyncState, in order.
func (f *FakeAdapter) SyncedSnapshots() []Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Snapshot(nil), f.synced...)
}

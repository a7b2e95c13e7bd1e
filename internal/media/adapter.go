package media

// Role mirrors store.Role without importing internal/store, keeping this
// package's only dependency on the rest of the module to a single small
// value type passed in by the caller.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Snapshot is the read-only view of the expected ActiveCall the
// coordinator hands the adapter via SyncState, prior to or coincident
// with the first call:start (§4.4).
type Snapshot struct {
	CallID         string
	Role           Role
	RemoteUserID   string
	IsVideoEnabled bool
}

// Adapter is the coordinator's entire view of the media session.
type Adapter interface {
	// Initialize is called once per process lifetime.
	Initialize() error
	// SyncState tells the adapter which call it should expect to
	// negotiate next.
	SyncState(Snapshot) error
	// Connected emits a callId each time that call's media session
	// reports connected.
	Connected() <-chan string
	// Disconnected emits a callId each time that call's media session
	// fails, disconnects, or closes, whether or not it had connected.
	Disconnected() <-chan string
	// Stop tears down any session state for callId. Idempotent.
	Stop(callID string) error
}

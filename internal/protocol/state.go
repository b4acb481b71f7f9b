package protocol

import (
	"os"

	"github.com/boatd/boatd/internal/registry"
)

// Phase is one of the five states a connection can occupy.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAwaitPassword
	PhaseAuthenticated
	PhasePutOpen
	PhaseReceivingBlock
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseAwaitPassword:
		return "AWAIT_PASSWORD"
	case PhaseAuthenticated:
		return "AUTHENTICATED"
	case PhasePutOpen:
		return "PUT_OPEN"
	case PhaseReceivingBlock:
		return "RECEIVING_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// stagingRecord is the in-flight upload for one PUT. It is present (non-nil
// on ConnectionState) for exactly the duration of PhasePutOpen and
// PhaseReceivingBlock, per the data model's invariant. Using a pointer
// rather than a zero-valued struct with a sentinel file descriptor avoids
// the original implementation's conflation of fd 0 with "no staging".
type stagingRecord struct {
	tempPath              string
	sink                  *os.File
	targetFilename        string
	bytesRemainingInBlock int
}

// ConnectionState is the per-connection state bag. Exactly one exists per
// live connection; the Connection Supervisor is its sole owner and sole
// mutator.
type ConnectionState struct {
	phase           Phase
	pendingUsername string
	user            *registry.User
	staging         *stagingRecord
}

// NewConnectionState returns a fresh connection state in PhaseInit.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{phase: PhaseInit}
}

// Phase reports the connection's current phase, for logging and tests.
func (cs *ConnectionState) Phase() Phase {
	return cs.phase
}

// User reports the authenticated user, if any.
func (cs *ConnectionState) User() (registry.User, bool) {
	if cs.user == nil {
		return registry.User{}, false
	}
	return *cs.user, true
}

// Staging reports whether an upload is currently open.
func (cs *ConnectionState) Staging() bool {
	return cs.staging != nil
}

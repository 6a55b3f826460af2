package state

import "fmt"

// Kind selects the State variant.
type Kind int

const (
	Initialized Kind = iota
	Connecting
	Authenticating
	Connected
	Disconnecting
	Disconnected
)

func (k Kind) String() string {
	switch k {
	case Initialized:
		return "initialized"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is a snapshot of the connection state.
type State struct {
	Kind         Kind
	ConnectionID string // Connected only
	Source       Source // Disconnecting and Disconnected only
}

// NewInitialized returns the state of a socket that never connected.
func NewInitialized() State { return State{Kind: Initialized} }

// NewConnecting returns the state while the transport is opening.
func NewConnecting() State { return State{Kind: Connecting} }

// NewAuthenticating returns the state while the auth handshake is in flight.
func NewAuthenticating() State { return State{Kind: Authenticating} }

// NewConnected returns the state of an authenticated connection.
func NewConnected(connectionID string) State {
	return State{Kind: Connected, ConnectionID: connectionID}
}

// NewDisconnecting returns the state between a disconnect request and the
// transport confirming the close.
func NewDisconnecting(src Source) State { return State{Kind: Disconnecting, Source: src} }

// NewDisconnected returns the terminal state of a session.
func NewDisconnected(src Source) State { return State{Kind: Disconnected, Source: src} }

// IsConnected reports whether the state is Connected.
func (s State) IsConnected() bool { return s.Kind == Connected }

// IsActive reports whether a session exists or is being set up or torn down.
func (s State) IsActive() bool { return s.Kind != Disconnected }

// IsConnecting reports whether a handshake is in progress.
func (s State) IsConnecting() bool { return s.Kind == Connecting || s.Kind == Authenticating }

// IsAutomaticReconnectionEnabled is only ever true for a Disconnected state
// whose source allows it.
func (s State) IsAutomaticReconnectionEnabled() bool {
	if s.Kind != Disconnected {
		return false
	}
	return s.Source.IsAutomaticReconnectionEnabled()
}

func (s State) String() string {
	switch s.Kind {
	case Connected:
		return fmt.Sprintf("connected(%s)", s.ConnectionID)
	case Disconnecting, Disconnected:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Source)
	default:
		return s.Kind.String()
	}
}

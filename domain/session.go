package domain

// SessionState is the lifecycle of a connection.
// Unregistered -> Registered -> Closed, Closed being reachable from any state.
type SessionState int

const (
	Unregistered SessionState = iota
	Registered
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanExchange tells if the connection is allowed to send, receive or load history.
func (s SessionState) CanExchange() bool {
	return s == Registered
}

// Register returns the state following a register event.
// A closed session stays closed.
func (s SessionState) Register() SessionState {
	if s == Closed {
		return Closed
	}
	return Registered
}

package roomsync

// ConnState is the connection manager's position in its state machine.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribed
	StateRecovering
	// StateClosed is terminal: the owner called Close, or MaxAttempts ran out.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRecovering:
		return "recovering"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

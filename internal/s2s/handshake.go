package s2s

// LinkState tracks how far the local link has progressed through the
// registration and synchronization sequence.
type LinkState int

const (
	StateConnecting LinkState = iota
	StateAuthenticating
	StateNegotiating
	StateAwaitingRegistration
	StateRegistered
	StateBursting
	StateSynced
	StateDisconnected
)

func (s LinkState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateNegotiating:
		return "negotiating"
	case StateAwaitingRegistration:
		return "awaiting-registration"
	case StateRegistered:
		return "registered"
	case StateBursting:
		return "bursting"
	case StateSynced:
		return "synced"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

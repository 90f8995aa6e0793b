package livesync

// State is the connection state of a watch
type State int32

const (
	StateDisconnected State = iota
	StateSubscribing
	StateLive
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MarshalText renders the state by name in status output
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

package session

// State is the loop's connection and turn state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StateQuerying
	StateStreaming
	StateReconnecting
	StateInterrupting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateInterrupting:
		return "interrupting"
	default:
		return "unknown"
	}
}

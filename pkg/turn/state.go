package turn

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StateUserSpeaking
	StateAwaitingResponse
	StateAssistantSpeaking
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateIdle:
		return "IDLE"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateAssistantSpeaking:
		return "ASSISTANT_SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Connected reports whether the session socket is up in this state.
func (s State) Connected() bool {
	switch s {
	case StateIdle, StateUserSpeaking, StateAwaitingResponse, StateAssistantSpeaking:
		return true
	}
	return false
}

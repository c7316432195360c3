package turn

import (
	"log/slog"
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// FSM is the turn-taking state machine. It validates transitions against the
// conversation protocol; an attempt that does not match the current state is
// logged as a protocol anomaly and ignored rather than treated as fatal,
// because backends may emit events in unexpected orders under load.
type FSM struct {
	mu      sync.RWMutex
	current State
	log     *slog.Logger

	listeners []StateListener

	speakingStart  time.Time
	userSpeechMark time.Time
}

func NewFSM(log *slog.Logger) *FSM {
	if log == nil {
		log = slog.Default()
	}
	return &FSM{current: StateDisconnected, log: log}
}

// State returns the current state.
func (f *FSM) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// validTransitions encodes the turn-taking protocol. Every state may also
// fall to Disconnected on transport failure or explicit disconnect.
var validTransitions = map[State][]State{
	StateDisconnected:      {StateConnecting},
	StateConnecting:        {StateIdle},
	StateIdle:              {StateUserSpeaking},
	StateUserSpeaking:      {StateAwaitingResponse, StateIdle},
	StateAwaitingResponse:  {StateAssistantSpeaking, StateIdle},
	StateAssistantSpeaking: {StateIdle, StateUserSpeaking},
}

func transitionValid(from, to State) bool {
	if to == StateDisconnected {
		return from != StateDisconnected
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state. It returns false, after logging an
// anomaly, when the transition is not part of the protocol.
func (f *FSM) Transition(to State, reason string) bool {
	f.mu.Lock()
	from := f.current
	if !transitionValid(from, to) {
		f.mu.Unlock()
		f.log.Warn("turn_transition_anomaly",
			"from", from.String(),
			"to", to.String(),
			"reason", reason,
		)
		return false
	}
	f.current = to
	switch to {
	case StateAssistantSpeaking:
		f.speakingStart = time.Now()
	case StateUserSpeaking:
		f.userSpeechMark = time.Now()
	}
	listeners := make([]StateListener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	event := StateChange{
		FromState: from,
		ToState:   to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return true
}

// AddListener registers a listener for state change events.
func (f *FSM) AddListener(listener StateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, listener)
}

// SpeakingDuration reports how long the assistant has been speaking, zero
// outside AssistantSpeaking. Used for barge-in latency metrics.
func (f *FSM) SpeakingDuration() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current != StateAssistantSpeaking {
		return 0
	}
	return time.Since(f.speakingStart)
}

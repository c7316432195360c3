package realtime

// Event is one demultiplexed inbound message. The client delivers events on
// a single ordered channel; consumers type-switch on the concrete type.
type Event interface {
	eventName() string
}

// SessionInfo is the negotiated session metadata returned by the handshake.
type SessionInfo struct {
	ID         string
	Model      string
	Voice      string
	SampleRate int
}

type SessionCreated struct {
	Session SessionInfo
}

type SessionUpdated struct {
	Session SessionInfo
}

// SpeechStarted is the backend VAD reporting the user began speaking.
type SpeechStarted struct{}

// SpeechStopped is the backend VAD reporting the user stopped speaking.
type SpeechStopped struct{}

type TranscriptDelta struct {
	Role       string
	Generation string
	Text       string
}

type TranscriptDone struct {
	Role       string
	Generation string
	Text       string
}

// AudioDelta carries one decoded PCM16 chunk of synthesized speech.
type AudioDelta struct {
	Generation string
	PCM        []byte
}

type ToolCall struct {
	ID         string
	Generation string
	Name       string
	Arguments  map[string]any
}

type GenerationDone struct {
	Generation string
}

// GenerationCancelled acknowledges a cancel. Acks for generations that were
// already terminal are expected and carry no active generation.
type GenerationCancelled struct {
	Generation string
}

// BackendError is a backend-reported error. Recoverable reports whether the
// session remains usable (protocol anomalies for stale generations) as
// opposed to semantic errors the UI should surface.
type BackendError struct {
	Code       string
	Message    string
	Generation string
}

// Recoverable protocol anomalies are ignored after logging.
func (e BackendError) Recoverable() bool {
	switch e.Code {
	case "unknown_generation", "generation_superseded", "nothing_to_cancel":
		return true
	}
	return false
}

// Closed is the terminal event: the socket is gone. Err is nil on a clean,
// locally requested close.
type Closed struct {
	Err error
}

func (SessionCreated) eventName() string      { return msgSessionCreated }
func (SessionUpdated) eventName() string      { return msgSessionUpdated }
func (SpeechStarted) eventName() string       { return msgSpeechStarted }
func (SpeechStopped) eventName() string       { return msgSpeechStopped }
func (TranscriptDelta) eventName() string     { return msgTranscriptDelta }
func (TranscriptDone) eventName() string      { return msgTranscriptDone }
func (AudioDelta) eventName() string          { return msgAudioDelta }
func (ToolCall) eventName() string            { return msgToolCall }
func (GenerationDone) eventName() string      { return msgGenerationDone }
func (GenerationCancelled) eventName() string { return msgGenerationCancelled }
func (BackendError) eventName() string        { return msgError }
func (Closed) eventName() string              { return "closed" }

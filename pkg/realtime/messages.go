package realtime

import "encoding/json"

// Wire message type discriminators. The backend protocol is fixed: JSON
// messages over one websocket, demultiplexed by "type".
const (
	// outbound
	msgSessionConfigure = "session.configure"
	msgAudioAppend      = "audio.append"
	msgGenerationCreate = "generation.create"
	msgGenerationCancel = "generation.cancel"
	msgToolResult       = "tool.result"

	// inbound
	msgSessionCreated      = "session.created"
	msgSessionUpdated      = "session.updated"
	msgSpeechStarted       = "speech.started"
	msgSpeechStopped       = "speech.stopped"
	msgTranscriptDelta     = "transcript.delta"
	msgTranscriptDone      = "transcript.done"
	msgAudioDelta          = "audio.delta"
	msgToolCall            = "tool.call"
	msgGenerationDone      = "generation.done"
	msgGenerationCancelled = "generation.cancelled"
	msgError               = "error"
)

// envelope is used for initial parsing to pick the event type before
// unmarshaling into the specific message struct.
type envelope struct {
	Type string `json:"type"`
}

// turnDetection holds the backend-side VAD configuration negotiated at
// session-configure time. The backend is authoritative for turn boundaries.
type turnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

type sessionConfigureMsg struct {
	Type          string          `json:"type"`
	EventID       string          `json:"event_id"`
	Instructions  string          `json:"instructions,omitempty"`
	Voice         string          `json:"voice,omitempty"`
	InputFormat   string          `json:"input_audio_format"`
	OutputFormat  string          `json:"output_audio_format"`
	SampleRate    int             `json:"sample_rate"`
	TurnDetection *turnDetection  `json:"turn_detection,omitempty"`
	Tools         json.RawMessage `json:"tools,omitempty"`
}

type audioAppendMsg struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Audio   string `json:"audio"` // base64 PCM16
	Seq     uint64 `json:"seq"`
}

type generationCreateMsg struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
}

type generationCancelMsg struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Generation string `json:"generation_id"`
}

type toolResultMsg struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	CallID  string          `json:"call_id"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type sessionCreatedMsg struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Session struct {
		ID         string `json:"id"`
		Model      string `json:"model,omitempty"`
		Voice      string `json:"voice,omitempty"`
		SampleRate int    `json:"sample_rate,omitempty"`
		ExpiresAt  int64  `json:"expires_at,omitempty"`
	} `json:"session"`
}

type speechActivityMsg struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	AudioEndMS int64  `json:"audio_end_ms,omitempty"`
}

type transcriptMsg struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Role       string `json:"role"`
	Generation string `json:"generation_id,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Text       string `json:"text,omitempty"`
}

type audioDeltaMsg struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Generation string `json:"generation_id"`
	Delta      string `json:"delta"` // base64 PCM16
}

type toolCallMsg struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id"`
	CallID     string          `json:"call_id"`
	Generation string          `json:"generation_id,omitempty"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
}

type generationLifecycleMsg struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Generation string `json:"generation_id"`
}

type errorMsg struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Error   struct {
		Code       string `json:"code,omitempty"`
		Message    string `json:"message,omitempty"`
		Generation string `json:"generation_id,omitempty"`
	} `json:"error"`
}

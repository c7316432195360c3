// Package realtime implements the client side of the persistent websocket
// session to the conversational AI backend: handshake, ordered upload of
// captured audio, and demultiplexing of inbound events.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/centavohq/voicecore/pkg/errorsx"
	"github.com/centavohq/voicecore/pkg/frames"
	"github.com/centavohq/voicecore/pkg/tools"
)

type VADConfig struct {
	Threshold         float64
	PrefixPaddingMS   int
	SilenceDurationMS int
}

type Config struct {
	URL              string
	Token            string
	Instructions     string
	Voice            string
	SampleRate       int
	VAD              VADConfig
	Tools            []tools.Definition
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

// Client owns the socket. All outbound writes are funneled through a single
// ordered channel and one writer goroutine so audio frames arrive at the
// backend in capture order.
type Client struct {
	cfg  Config
	log  *slog.Logger
	conn *websocket.Conn

	sendCh  chan []byte
	events  chan Event
	readyCh chan struct{}
	done    chan struct{}

	ready     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	mu      sync.Mutex
	session SessionInfo
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:     cfg.withDefaults(),
		log:     log,
		sendCh:  make(chan []byte, 256),
		events:  make(chan Event, 64),
		readyCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Events returns the single ordered stream of demultiplexed inbound events.
// The channel is closed after a Closed event when the socket is gone.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Session returns the negotiated session metadata once Connect succeeded.
func (c *Client) Session() SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect dials the backend, sends session.configure and blocks until the
// backend confirms session creation. No audio upload is permitted before it
// returns.
func (c *Client) Connect(ctx context.Context) (SessionInfo, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return SessionInfo{}, errorsx.Wrap(err, errorsx.ReasonTransportDial)
	}
	c.conn = conn

	go c.writeLoop()
	go c.readLoop()

	if err := c.sendConfigure(); err != nil {
		_ = c.Close()
		return SessionInfo{}, err
	}

	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-c.readyCh:
		return c.Session(), nil
	case <-ctx.Done():
		_ = c.Close()
		return SessionInfo{}, errorsx.Wrap(ctx.Err(), errorsx.ReasonHandshake)
	case <-timer.C:
		_ = c.Close()
		return SessionInfo{}, errorsx.New(errorsx.ReasonHandshake, "no session ack within %s", c.cfg.HandshakeTimeout)
	case <-c.done:
		return SessionInfo{}, errorsx.New(errorsx.ReasonHandshake, "connection closed during handshake")
	}
}

func (c *Client) sendConfigure() error {
	var toolsRaw json.RawMessage
	if len(c.cfg.Tools) > 0 {
		b, err := json.Marshal(c.cfg.Tools)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonHandshake)
		}
		toolsRaw = b
	}
	msg := sessionConfigureMsg{
		Type:         msgSessionConfigure,
		EventID:      uuid.NewString(),
		Instructions: c.cfg.Instructions,
		Voice:        c.cfg.Voice,
		InputFormat:  "pcm16",
		OutputFormat: "pcm16",
		SampleRate:   c.cfg.SampleRate,
		TurnDetection: &turnDetection{
			Type:              "server_vad",
			Threshold:         c.cfg.VAD.Threshold,
			PrefixPaddingMS:   c.cfg.VAD.PrefixPaddingMS,
			SilenceDurationMS: c.cfg.VAD.SilenceDurationMS,
		},
		Tools: toolsRaw,
	}
	return c.enqueue(msg)
}

// SendAudio uploads one captured frame. Uploading before the session ack
// is a protocol violation and is rejected without touching the socket.
func (c *Client) SendAudio(frame frames.AudioFrame) error {
	if !c.ready.Load() {
		return errorsx.New(errorsx.ReasonHandshake, "audio upload before session ack")
	}
	return c.enqueue(audioAppendMsg{
		Type:    msgAudioAppend,
		EventID: uuid.NewString(),
		Audio:   base64.StdEncoding.EncodeToString(frame.RawPayload()),
		Seq:     frame.Seq(),
	})
}

// CreateGeneration asks the backend to produce a response to the turn that
// just ended.
func (c *Client) CreateGeneration() error {
	return c.enqueue(generationCreateMsg{Type: msgGenerationCreate, EventID: uuid.NewString()})
}

// CancelGeneration requests cancellation of an in-flight generation. This is
// advisory: a "nothing to cancel" acknowledgment for an already terminal
// generation is expected and not an error.
func (c *Client) CancelGeneration(id string) error {
	return c.enqueue(generationCancelMsg{
		Type:       msgGenerationCancel,
		EventID:    uuid.NewString(),
		Generation: id,
	})
}

// SendToolResult answers a backend tool call. Exactly one result per call
// id, success or error.
func (c *Client) SendToolResult(res tools.Result) error {
	msg := toolResultMsg{
		Type:    msgToolResult,
		EventID: uuid.NewString(),
		CallID:  res.ID,
	}
	if res.Err != nil {
		msg.Error = &wireError{Code: res.Err.Code, Message: res.Err.Message}
	} else {
		payload, err := json.Marshal(res.Payload)
		if err != nil {
			msg.Error = &wireError{Code: string(errorsx.ReasonToolFailed), Message: err.Error()}
		} else {
			msg.Output = payload
		}
	}
	return c.enqueue(msg)
}

// Close tears the socket down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *Client) enqueue(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	select {
	case c.sendCh <- b:
		return nil
	case <-c.done:
		return errorsx.New(errorsx.ReasonTransportClosed, "connection closed")
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !c.closed.Load() {
					c.log.Error("realtime_write_failed", "error", err.Error())
					_ = c.Close()
				}
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				c.emit(Closed{})
			} else {
				_ = c.Close()
				c.emit(Closed{Err: errorsx.Wrap(err, errorsx.ReasonTransportClosed)})
			}
			return
		}
		c.demux(data)
	}
}

// demux dispatches one inbound message by type to exactly one typed event.
func (c *Client) demux(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("realtime_bad_message", "error", err.Error())
		return
	}

	switch env.Type {
	case msgSessionCreated, msgSessionUpdated:
		var msg sessionCreatedMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.anomaly(env.Type, err)
			return
		}
		info := SessionInfo{
			ID:         msg.Session.ID,
			Model:      msg.Session.Model,
			Voice:      msg.Session.Voice,
			SampleRate: msg.Session.SampleRate,
		}
		c.mu.Lock()
		c.session = info
		c.mu.Unlock()
		if env.Type == msgSessionCreated {
			if c.ready.CompareAndSwap(false, true) {
				close(c.readyCh)
			}
			c.emit(SessionCreated{Session: info})
		} else {
			c.emit(SessionUpdated{Session: info})
		}

	case msgSpeechStarted:
		c.emit(SpeechStarted{})

	case msgSpeechStopped:
		c.emit(SpeechStopped{})

	case msgTranscriptDelta, msgTranscriptDone:
		var msg transcriptMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.anomaly(env.Type, err)
			return
		}
		if env.Type == msgTranscriptDelta {
			c.emit(TranscriptDelta{Role: msg.Role, Generation: msg.Generation, Text: msg.Delta})
		} else {
			c.emit(TranscriptDone{Role: msg.Role, Generation: msg.Generation, Text: msg.Text})
		}

	case msgAudioDelta:
		var msg audioDeltaMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.anomaly(env.Type, err)
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			c.anomaly(env.Type, err)
			return
		}
		c.emit(AudioDelta{Generation: msg.Generation, PCM: pcm})

	case msgToolCall:
		var msg toolCallMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.anomaly(env.Type, err)
			return
		}
		args := map[string]any{}
		if len(msg.Arguments) > 0 {
			if err := json.Unmarshal(msg.Arguments, &args); err != nil {
				c.anomaly(env.Type, err)
			}
		}
		c.emit(ToolCall{ID: msg.CallID, Generation: msg.Generation, Name: msg.Name, Arguments: args})

	case msgGenerationDone:
		var msg generationLifecycleMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.anomaly(env.Type, err)
			return
		}
		c.emit(GenerationDone{Generation: msg.Generation})

	case msgGenerationCancelled:
		var msg generationLifecycleMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.anomaly(env.Type, err)
			return
		}
		c.emit(GenerationCancelled{Generation: msg.Generation})

	case msgError:
		var msg errorMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.anomaly(env.Type, err)
			return
		}
		c.emit(BackendError{Code: msg.Error.Code, Message: msg.Error.Message, Generation: msg.Error.Generation})

	default:
		c.log.Warn("realtime_unknown_event", "event_type", env.Type)
	}
}

func (c *Client) anomaly(eventType string, err error) {
	c.log.Warn("realtime_event_decode_failed", "event_type", eventType, "error", err.Error())
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
		// Teardown in progress; only the terminal Closed event still matters.
		if _, isClosed := ev.(Closed); isClosed {
			select {
			case c.events <- ev:
			default:
			}
		}
	}
}

// Package voicecore wires the capture path, the realtime transport, the
// playback queue and the turn state machine into one duplex conversation
// engine.
package voicecore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/centavohq/voicecore/pkg/errorsx"
	"github.com/centavohq/voicecore/pkg/frames"
	"github.com/centavohq/voicecore/pkg/logging"
	"github.com/centavohq/voicecore/pkg/metrics"
	"github.com/centavohq/voicecore/pkg/realtime"
	"github.com/centavohq/voicecore/pkg/redact"
	"github.com/centavohq/voicecore/pkg/tools"
	"github.com/centavohq/voicecore/pkg/transcript"
	"github.com/centavohq/voicecore/pkg/turn"
)

// Transport is the duplex session with the realtime backend.
type Transport interface {
	Connect(ctx context.Context) (realtime.SessionInfo, error)
	Events() <-chan realtime.Event
	SendAudio(frame frames.AudioFrame) error
	CreateGeneration() error
	CancelGeneration(id string) error
	SendToolResult(res tools.Result) error
	Close() error
}

// Player is the ordered output side. Flush is synchronous: when it returns,
// nothing queued before the call will ever reach the speaker.
type Player interface {
	Start() error
	Enqueue(generation string, pcm []byte)
	Retire(generation string)
	Flush()
	IsPlaying() bool
	Close() error
}

// Recorder is the microphone side. Stop is deterministic: no frame callback
// fires after it returns.
type Recorder interface {
	Start(onFrame func(frames.AudioFrame), onEvent func(frames.SystemFrame)) error
	Stop() error
}

// Listener receives user-facing engine updates. All methods are invoked from
// the engine's event goroutine and must not block.
type Listener interface {
	OnStateChange(change turn.StateChange)
	OnTranscript(entry transcript.Entry)
	OnNotice(level slog.Level, message string)
}

// Deps carries the engine's collaborators. Transport, Player and Recorder
// are required; the rest default sensibly.
type Deps struct {
	Transport  Transport
	Player     Player
	Recorder   Recorder
	Dispatcher *tools.Dispatcher
	Listener   Listener
	Observer   metrics.Observer
	Log        *slog.Logger
}

// Engine runs one voice conversation. A single goroutine consumes the
// transport's event stream and drives all state; the public methods are the
// user-intent surface and are safe to call from any goroutine.
type Engine struct {
	cfg  Config
	log  *slog.Logger
	fsm  *turn.FSM
	agg  *transcript.Aggregator
	deps Deps

	mu            sync.Mutex
	running       bool
	activeGen     string
	genStart      time.Time
	firstAudio    bool
	recording     bool
	terminalGens  map[string]struct{}
	terminalOrder []string

	loopDone chan struct{}
	cancel   context.CancelFunc
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Transport == nil || deps.Player == nil || deps.Recorder == nil {
		return nil, fmt.Errorf("transport, player and recorder are required")
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	log := logging.NewComponentLogger(deps.Log, "engine")

	redact.SetEnabled(cfg.Privacy.RedactPII)

	e := &Engine{
		cfg:          cfg,
		log:          log,
		fsm:          turn.NewFSM(log),
		agg:          transcript.NewAggregator(deps.Log),
		deps:         deps,
		terminalGens: make(map[string]struct{}),
	}
	if deps.Listener != nil {
		e.fsm.AddListener(listenerAdapter{deps.Listener})
		e.agg.OnUpdate(deps.Listener.OnTranscript)
	}
	return e, nil
}

type listenerAdapter struct{ l Listener }

func (a listenerAdapter) OnStateChange(change turn.StateChange) { a.l.OnStateChange(change) }

// State returns the current turn state.
func (e *Engine) State() turn.State {
	return e.fsm.State()
}

// Transcript returns a snapshot of the conversation so far.
func (e *Engine) Transcript() []transcript.Entry {
	return e.agg.Entries()
}

// Connect dials the backend and starts the event loop. It blocks until the
// session handshake completes or fails.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already connected")
	}
	e.running = true
	e.mu.Unlock()

	if !e.fsm.Transition(turn.StateConnecting, "connect_requested") {
		e.setStopped()
		return fmt.Errorf("connect: invalid from state %s", e.fsm.State())
	}

	session, err := e.deps.Transport.Connect(ctx)
	if err != nil {
		e.fsm.Transition(turn.StateDisconnected, "connect_failed")
		e.setStopped()
		return err
	}
	if err := e.deps.Player.Start(); err != nil {
		_ = e.deps.Transport.Close()
		e.fsm.Transition(turn.StateDisconnected, "playback_start_failed")
		e.setStopped()
		return errorsx.Wrap(err, errorsx.ReasonDeviceUnavailable)
	}

	e.log.Info("session_established",
		"session_id", session.ID,
		"model", session.Model,
		"sample_rate", session.SampleRate)

	loopCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	e.fsm.Transition(turn.StateIdle, "session_created")
	go e.run(loopCtx)
	return nil
}

// StartConversation opens the microphone. Captured audio streams to the
// backend; turn boundaries come back from the backend's voice activity
// detector.
func (e *Engine) StartConversation() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return fmt.Errorf("engine not connected")
	}
	if e.recording {
		return nil
	}
	if err := e.deps.Recorder.Start(e.onCaptureFrame, e.onCaptureEvent); err != nil {
		return err
	}
	e.recording = true
	return nil
}

// StopConversation closes the microphone. A response already in flight is
// left to finish; use Disconnect to tear everything down.
func (e *Engine) StopConversation() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recording {
		return nil
	}
	e.recording = false
	return e.deps.Recorder.Stop()
}

// Disconnect stops capture, silences playback and closes the session. It
// returns after the event loop has observed the socket close.
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	recording := e.recording
	e.recording = false
	loopDone := e.loopDone
	e.mu.Unlock()

	if recording {
		_ = e.deps.Recorder.Stop()
	}
	e.deps.Player.Flush()
	err := e.deps.Transport.Close()

	if loopDone != nil {
		select {
		case <-loopDone:
		case <-time.After(5 * time.Second):
			e.log.Warn("event_loop_drain_timeout")
		}
	}
	_ = e.deps.Player.Close()
	e.setStopped()
	return err
}

func (e *Engine) setStopped() {
	e.mu.Lock()
	e.running = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()
}

func (e *Engine) onCaptureFrame(frame frames.AudioFrame) {
	if err := e.deps.Transport.SendAudio(frame); err != nil {
		e.log.Warn("audio_upload_failed", "seq", frame.Seq(), "error", err)
	}
}

func (e *Engine) onCaptureEvent(ev frames.SystemFrame) {
	e.log.Debug("capture_event", "name", ev.Name())
}

// run is the only goroutine that mutates turn state from backend events.
func (e *Engine) run(ctx context.Context) {
	defer close(e.loopDone)
	for ev := range e.deps.Transport.Events() {
		switch ev := ev.(type) {
		case realtime.SessionUpdated:
			e.log.Debug("session_updated", "session_id", ev.Session.ID)
		case realtime.SpeechStarted:
			e.handleSpeechStarted()
		case realtime.SpeechStopped:
			e.handleSpeechStopped()
		case realtime.TranscriptDelta:
			e.trackGeneration(ev.Role, ev.Generation)
			e.agg.Delta(transcript.Role(ev.Role), ev.Generation, redact.Text(ev.Text))
		case realtime.TranscriptDone:
			e.agg.Commit(transcript.Role(ev.Role), ev.Generation, redact.Text(ev.Text))
		case realtime.AudioDelta:
			e.handleAudioDelta(ev)
		case realtime.ToolCall:
			e.handleToolCall(ctx, ev)
		case realtime.GenerationDone:
			e.handleGenerationDone(ev)
		case realtime.GenerationCancelled:
			e.handleGenerationCancelled(ev)
		case realtime.BackendError:
			e.handleBackendError(ev)
		case realtime.Closed:
			e.handleClosed(ev)
			return
		}
	}
}

// handleSpeechStarted is the barge-in point. If the assistant is audible,
// local playback is silenced before the cancel goes on the wire so the user
// never talks over stale audio.
func (e *Engine) handleSpeechStarted() {
	e.mu.Lock()
	gen := e.activeGen
	e.mu.Unlock()

	interrupting := e.fsm.State() == turn.StateAssistantSpeaking || e.deps.Player.IsPlaying()
	if interrupting {
		e.deps.Player.Flush()
		if gen != "" {
			e.deps.Player.Retire(gen)
			e.markTerminal(gen)
			e.mu.Lock()
			if e.activeGen == gen {
				e.activeGen = ""
			}
			e.mu.Unlock()
			if err := e.deps.Transport.CancelGeneration(gen); err != nil {
				e.log.Warn("cancel_send_failed", "generation", gen, "error", err)
			}
		}
		e.deps.Observer.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventBargeIn,
			Time: time.Now(),
			Tags: map[string]string{"generation": gen},
		})
		e.log.Info("barge_in", "generation", gen)
	}

	e.fsm.Transition(turn.StateUserSpeaking, "speech_started")
}

func (e *Engine) handleSpeechStopped() {
	if !e.fsm.Transition(turn.StateAwaitingResponse, "speech_stopped") {
		return
	}
	e.mu.Lock()
	e.activeGen = ""
	e.genStart = time.Now()
	e.firstAudio = false
	e.mu.Unlock()
	if err := e.deps.Transport.CreateGeneration(); err != nil {
		e.log.Error("generation_request_failed", "error", err)
		e.fsm.Transition(turn.StateIdle, "generation_request_failed")
	}
}

// trackGeneration adopts the backend-assigned generation id from the first
// assistant event that carries one. Ids already cancelled or completed are
// never re-adopted; their late events must not restart a turn.
func (e *Engine) trackGeneration(role, generation string) {
	if role != string(transcript.RoleAssistant) || generation == "" {
		return
	}
	e.mu.Lock()
	_, terminal := e.terminalGens[generation]
	if e.activeGen == "" && !terminal {
		e.activeGen = generation
	}
	e.mu.Unlock()
}

// markTerminal records a generation id as finished or cancelled. The set is
// bounded; the oldest ids fall out once the backend has long moved on.
func (e *Engine) markTerminal(generation string) {
	if generation == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.terminalGens[generation]; ok {
		return
	}
	e.terminalGens[generation] = struct{}{}
	e.terminalOrder = append(e.terminalOrder, generation)
	if len(e.terminalOrder) > 32 {
		oldest := e.terminalOrder[0]
		e.terminalOrder = e.terminalOrder[1:]
		delete(e.terminalGens, oldest)
	}
}

func (e *Engine) isTerminal(generation string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.terminalGens[generation]
	return ok
}

func (e *Engine) handleAudioDelta(ev realtime.AudioDelta) {
	if e.isTerminal(ev.Generation) {
		e.log.Debug("late_audio_delta_dropped", "generation", ev.Generation)
		return
	}
	e.trackGeneration(string(transcript.RoleAssistant), ev.Generation)

	e.mu.Lock()
	first := !e.firstAudio && ev.Generation == e.activeGen
	if first {
		e.firstAudio = true
	}
	genStart := e.genStart
	e.mu.Unlock()

	if first {
		e.fsm.Transition(turn.StateAssistantSpeaking, "first_audio")
		if !genStart.IsZero() {
			e.deps.Observer.RecordEvent(metrics.MetricsEvent{
				Name:  metrics.EventFirstAudioLatency,
				Time:  time.Now(),
				Value: float64(time.Since(genStart).Milliseconds()),
				Tags:  map[string]string{"generation": ev.Generation},
			})
		}
	}
	e.deps.Player.Enqueue(ev.Generation, ev.PCM)
}

// handleToolCall answers every call, including unknown tools and handler
// failures; the dispatcher folds those into an error result. Dispatch runs
// off the event goroutine so a slow tool never stalls audio.
func (e *Engine) handleToolCall(ctx context.Context, ev realtime.ToolCall) {
	if e.deps.Dispatcher == nil {
		e.log.Error("tool_call_without_dispatcher", "tool", ev.Name, "call_id", ev.ID)
		return
	}
	e.log.Info("tool_call", "tool", ev.Name, "call_id", ev.ID, "generation", ev.Generation)
	go func() {
		started := time.Now()
		res := e.deps.Dispatcher.Dispatch(ctx, tools.Request{
			ID:   ev.ID,
			Name: ev.Name,
			Args: ev.Arguments,
		})
		e.deps.Observer.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventToolCall,
			Time:  time.Now(),
			Value: float64(time.Since(started).Milliseconds()),
			Tags:  map[string]string{"tool": ev.Name, "ok": fmt.Sprintf("%t", res.Err == nil)},
		})
		if err := e.deps.Transport.SendToolResult(res); err != nil {
			e.log.Error("tool_result_send_failed", "call_id", ev.ID, "error", err)
		}
	}()
}

func (e *Engine) handleGenerationDone(ev realtime.GenerationDone) {
	e.mu.Lock()
	active := ev.Generation == e.activeGen
	if active {
		e.activeGen = ""
	}
	e.mu.Unlock()

	e.markTerminal(ev.Generation)
	if !active {
		e.log.Debug("generation_done_inactive", "generation", ev.Generation)
		return
	}
	e.deps.Observer.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventTurnComplete,
		Time: time.Now(),
		Tags: map[string]string{"generation": ev.Generation},
	})
	e.fsm.Transition(turn.StateIdle, "generation_done")
}

// handleGenerationCancelled also covers acks for generations that were
// already finished or superseded; those are informational. The id stays
// retired: deltas for it may trail the ack and must still be dropped.
func (e *Engine) handleGenerationCancelled(ev realtime.GenerationCancelled) {
	e.mu.Lock()
	active := ev.Generation != "" && ev.Generation == e.activeGen
	if active {
		e.activeGen = ""
	}
	e.mu.Unlock()

	e.markTerminal(ev.Generation)
	e.log.Debug("generation_cancelled", "generation", ev.Generation, "was_active", active)
	if active && e.fsm.State() == turn.StateAssistantSpeaking {
		e.fsm.Transition(turn.StateIdle, "generation_cancelled")
	}
}

func (e *Engine) handleBackendError(ev realtime.BackendError) {
	if ev.Recoverable() {
		e.log.Warn("backend_anomaly", "code", ev.Code, "message", ev.Message, "generation", ev.Generation)
		return
	}
	e.log.Error("backend_error", "code", ev.Code, "message", ev.Message, "generation", ev.Generation)
	if e.deps.Listener != nil {
		e.deps.Listener.OnNotice(slog.LevelError, ev.Message)
	}
}

func (e *Engine) handleClosed(ev realtime.Closed) {
	switch {
	case ev.Err == nil:
		e.log.Info("session_closed")
	case errorsx.Terminal(ev.Err):
		e.log.Error("session_lost", "reason", errorsx.Reason(ev.Err), "error", ev.Err)
		if e.deps.Listener != nil {
			e.deps.Listener.OnNotice(slog.LevelError, "connection to the assistant was lost")
		}
	default:
		e.log.Warn("session_closed_with_error", "error", ev.Err)
	}

	e.mu.Lock()
	recording := e.recording
	e.recording = false
	e.mu.Unlock()
	if recording {
		_ = e.deps.Recorder.Stop()
	}
	e.deps.Player.Flush()
	e.fsm.Transition(turn.StateDisconnected, "socket_closed")
}

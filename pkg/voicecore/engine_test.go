package voicecore

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/centavohq/voicecore/pkg/errorsx"
	"github.com/centavohq/voicecore/pkg/frames"
	"github.com/centavohq/voicecore/pkg/logging"
	"github.com/centavohq/voicecore/pkg/realtime"
	"github.com/centavohq/voicecore/pkg/tools"
	"github.com/centavohq/voicecore/pkg/transcript"
	"github.com/centavohq/voicecore/pkg/turn"
)

// callLog records cross-component call order so tests can assert sequencing
// between the player and the transport.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *callLog) index(name string) int {
	for i, call := range c.snapshot() {
		if call == name {
			return i
		}
	}
	return -1
}

type fakeTransport struct {
	log    *callLog
	events chan realtime.Event

	mu      sync.Mutex
	audio   []frames.AudioFrame
	results []tools.Result
	creates int
}

func newFakeTransport(log *callLog) *fakeTransport {
	return &fakeTransport{log: log, events: make(chan realtime.Event, 32)}
}

func (f *fakeTransport) Connect(context.Context) (realtime.SessionInfo, error) {
	return realtime.SessionInfo{ID: "sess_test", SampleRate: 24000}, nil
}

func (f *fakeTransport) Events() <-chan realtime.Event { return f.events }

func (f *fakeTransport) SendAudio(frame frames.AudioFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, frame)
	return nil
}

func (f *fakeTransport) CreateGeneration() error {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	f.log.add("create_generation")
	return nil
}

func (f *fakeTransport) CancelGeneration(id string) error {
	f.log.add("cancel:" + id)
	return nil
}

func (f *fakeTransport) SendToolResult(res tools.Result) error {
	f.mu.Lock()
	f.results = append(f.results, res)
	f.mu.Unlock()
	f.log.add("tool_result:" + res.ID)
	return nil
}

func (f *fakeTransport) Close() error {
	close(f.events)
	return nil
}

type fakePlayer struct {
	log *callLog

	mu      sync.Mutex
	chunks  []string
	playing bool
}

func (f *fakePlayer) Start() error { return nil }

func (f *fakePlayer) Enqueue(generation string, pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, generation)
}

func (f *fakePlayer) Retire(generation string) { f.log.add("retire:" + generation) }

func (f *fakePlayer) Flush() { f.log.add("flush") }

func (f *fakePlayer) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakePlayer) chunkCount(generation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, g := range f.chunks {
		if g == generation {
			n++
		}
	}
	return n
}

func (f *fakePlayer) setPlaying(v bool) {
	f.mu.Lock()
	f.playing = v
	f.mu.Unlock()
}

func (f *fakePlayer) Close() error { return nil }

type fakeRecorder struct {
	mu      sync.Mutex
	started bool
	onFrame func(frames.AudioFrame)
}

func (f *fakeRecorder) Start(onFrame func(frames.AudioFrame), onEvent func(frames.SystemFrame)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.onFrame = onFrame
	return nil
}

func (f *fakeRecorder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

type harness struct {
	engine    *Engine
	transport *fakeTransport
	player    *fakePlayer
	recorder  *fakeRecorder
	log       *callLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &callLog{}
	h := &harness{
		transport: newFakeTransport(log),
		player:    &fakePlayer{log: log},
		recorder:  &fakeRecorder{},
		log:       log,
	}
	cfg := Config{Backend: BackendConfig{URL: "wss://example.test/v1"}}
	engine, err := NewEngine(cfg, Deps{
		Transport: h.transport,
		Player:    h.player,
		Recorder:  h.recorder,
		Log:       logging.Init("error", "text"),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	if err := h.engine.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { h.engine.Disconnect() })
}

func (h *harness) push(ev realtime.Event) {
	h.transport.events <- ev
}

func (h *harness) waitState(t *testing.T, want turn.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.engine.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state is %s, want %s", h.engine.State(), want)
}

func TestConnectReachesIdle(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	if got := h.engine.State(); got != turn.StateIdle {
		t.Fatalf("state after connect is %s, want %s", got, turn.StateIdle)
	}
}

func TestCapturedAudioFlowsToTransport(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	if err := h.engine.StartConversation(); err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	h.recorder.mu.Lock()
	onFrame := h.recorder.onFrame
	h.recorder.mu.Unlock()
	if onFrame == nil {
		t.Fatal("recorder never started")
	}

	onFrame(frames.NewAudioFrame(1, 1, []byte{1, 2}, 24000, 1, nil))
	onFrame(frames.NewAudioFrame(2, 2, []byte{3, 4}, 24000, 1, nil))

	h.transport.mu.Lock()
	defer h.transport.mu.Unlock()
	if len(h.transport.audio) != 2 {
		t.Fatalf("got %d uploaded frames, want 2", len(h.transport.audio))
	}
	if h.transport.audio[0].Seq() != 1 || h.transport.audio[1].Seq() != 2 {
		t.Fatal("frames uploaded out of order")
	}
}

func TestTurnCycleRequestsGeneration(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.push(realtime.SpeechStarted{})
	h.waitState(t, turn.StateUserSpeaking)

	h.push(realtime.SpeechStopped{})
	h.waitState(t, turn.StateAwaitingResponse)

	h.transport.mu.Lock()
	creates := h.transport.creates
	h.transport.mu.Unlock()
	if creates != 1 {
		t.Fatalf("got %d generation requests, want 1", creates)
	}

	h.push(realtime.AudioDelta{Generation: "gen_1", PCM: []byte{0, 0}})
	h.waitState(t, turn.StateAssistantSpeaking)

	h.push(realtime.GenerationDone{Generation: "gen_1"})
	h.waitState(t, turn.StateIdle)
}

func TestBargeInFlushesBeforeCancelling(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.push(realtime.SpeechStarted{})
	h.push(realtime.SpeechStopped{})
	h.push(realtime.AudioDelta{Generation: "gen_1", PCM: []byte{0, 0}})
	h.waitState(t, turn.StateAssistantSpeaking)
	h.player.setPlaying(true)

	h.push(realtime.SpeechStarted{})
	h.waitState(t, turn.StateUserSpeaking)

	flush := h.log.index("flush")
	retire := h.log.index("retire:gen_1")
	cancel := h.log.index("cancel:gen_1")
	if flush == -1 || retire == -1 || cancel == -1 {
		t.Fatalf("missing barge-in calls: %v", h.log.snapshot())
	}
	if !(flush < retire && retire < cancel) {
		t.Fatalf("wrong barge-in order: %v", h.log.snapshot())
	}
}

func TestStrayCancelAckLeavesStateAlone(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.push(realtime.GenerationCancelled{})
	h.push(realtime.BackendError{Code: "nothing_to_cancel", Message: "no active generation"})

	// Process a benign event behind them to know the loop kept going.
	h.push(realtime.SpeechStarted{})
	h.waitState(t, turn.StateUserSpeaking)
}

func TestToolCallAlwaysAnswered(t *testing.T) {
	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, time.Second, logging.Init("error", "text"))

	h := newHarness(t)
	h.engine.deps.Dispatcher = dispatcher
	h.connect(t)

	h.push(realtime.ToolCall{ID: "call_1", Generation: "gen_1", Name: "no_such_tool"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.transport.mu.Lock()
		n := len(h.transport.results)
		h.transport.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	h.transport.mu.Lock()
	defer h.transport.mu.Unlock()
	if len(h.transport.results) != 1 {
		t.Fatal("tool call never answered")
	}
	res := h.transport.results[0]
	if res.ID != "call_1" {
		t.Fatalf("result id %q, want call_1", res.ID)
	}
	if res.Err == nil || res.Err.Code != "tool_unknown" {
		t.Fatalf("unexpected result error %+v", res.Err)
	}
}

func TestTranscriptAccumulates(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.push(realtime.TranscriptDelta{Role: "assistant", Generation: "gen_1", Text: "You spent "})
	h.push(realtime.TranscriptDelta{Role: "assistant", Generation: "gen_1", Text: "$12."})
	h.push(realtime.TranscriptDone{Role: "assistant", Generation: "gen_1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := h.engine.Transcript()
		if len(entries) == 1 && entries[0].Final {
			if entries[0].Text != "You spent $12." {
				t.Fatalf("unexpected transcript %q", entries[0].Text)
			}
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("transcript never finalized")
}

func TestLateAudioAfterCancelAckIsDropped(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.push(realtime.SpeechStarted{})
	h.push(realtime.SpeechStopped{})
	h.push(realtime.AudioDelta{Generation: "gen_1", PCM: []byte{0, 0}})
	h.waitState(t, turn.StateAssistantSpeaking)
	h.player.setPlaying(true)

	// Barge-in retires gen_1 and requests its cancellation.
	h.push(realtime.SpeechStarted{})
	h.waitState(t, turn.StateUserSpeaking)
	h.player.setPlaying(false)

	// The ack arrives, then a delta for the same generation trails it.
	h.push(realtime.GenerationCancelled{Generation: "gen_1"})
	h.push(realtime.AudioDelta{Generation: "gen_1", PCM: []byte{1, 1}})

	// A transcript event behind the delta proves the loop processed it.
	h.push(realtime.TranscriptDone{Role: "user", Generation: "item_1", Text: "stop"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.engine.Transcript()) == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	if got := h.player.chunkCount("gen_1"); got != 1 {
		t.Fatalf("cancelled generation reached the player %d times, want 1", got)
	}
	if got := h.engine.State(); got == turn.StateAssistantSpeaking {
		t.Fatal("late delta of a cancelled generation restarted the assistant turn")
	}
}

type recordingListener struct {
	mu      sync.Mutex
	notices []string
}

func (l *recordingListener) OnStateChange(turn.StateChange) {}
func (l *recordingListener) OnTranscript(transcript.Entry)  {}
func (l *recordingListener) OnNotice(_ slog.Level, msg string) {
	l.mu.Lock()
	l.notices = append(l.notices, msg)
	l.mu.Unlock()
}

func TestUnrecoverableClosureNotifiesListener(t *testing.T) {
	h := newHarness(t)
	listener := &recordingListener{}
	h.engine.deps.Listener = listener
	if err := h.engine.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	h.push(realtime.Closed{Err: errorsx.New(errorsx.ReasonTransportClosed, "abnormal closure")})
	close(h.transport.events)
	h.waitState(t, turn.StateDisconnected)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(listener.notices))
	}
}

func TestSocketLossDisconnects(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := h.engine.StartConversation(); err != nil {
		t.Fatalf("start conversation: %v", err)
	}

	h.push(realtime.Closed{Err: context.DeadlineExceeded})
	close(h.transport.events)
	h.waitState(t, turn.StateDisconnected)

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	if h.recorder.started {
		t.Fatal("recorder left running after socket loss")
	}
}

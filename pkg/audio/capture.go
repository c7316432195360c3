package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/centavohq/voicecore/pkg/errorsx"
	"github.com/centavohq/voicecore/pkg/frames"
)

const (
	EventRecordingStarted = "recording.started"
	EventRecordingStopped = "recording.stopped"
)

type CaptureConfig struct {
	SampleRate       int
	Channels         int
	SilenceThreshold int16
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	return c
}

// Capture owns the input device and emits sequenced AudioFrames. Leading
// silence is suppressed until the first voiced block of a capture session;
// after that every block passes so an utterance is never truncated
// mid-pause.
type Capture struct {
	device CaptureDevice
	cfg    CaptureConfig
	log    *slog.Logger

	mu       sync.Mutex
	emitting bool
	voiced   bool
	seq      uint64
	onFrame  func(frames.AudioFrame)
	onEvent  func(frames.SystemFrame)
	inflight sync.WaitGroup
}

func NewCapture(device CaptureDevice, cfg CaptureConfig, log *slog.Logger) *Capture {
	if log == nil {
		log = slog.Default()
	}
	return &Capture{device: device, cfg: cfg.withDefaults(), log: log}
}

// Start acquires the device and begins emitting frames. A device that
// cannot be opened (missing permission, busy hardware) surfaces as a
// reasoned error, never a silent no-op.
func (c *Capture) Start(onFrame func(frames.AudioFrame), onEvent func(frames.SystemFrame)) error {
	c.mu.Lock()
	if c.emitting {
		c.mu.Unlock()
		return nil
	}
	c.onFrame = onFrame
	c.onEvent = onEvent
	c.voiced = false
	c.seq = 0
	c.mu.Unlock()

	if err := c.device.Start(c.handleBlock); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonDevicePermission)
	}

	c.mu.Lock()
	c.emitting = true
	event := c.onEvent
	c.mu.Unlock()

	c.log.Info("capture_started", "sample_rate", c.cfg.SampleRate)
	if event != nil {
		event(frames.NewSystemFrame(time.Now().UnixNano(), EventRecordingStarted, nil))
	}
	return nil
}

// Stop releases the device. Emission stops deterministically: the emitting
// flag is cleared under the lock, then Stop waits out any delivery already
// in flight, so no frame arrives after Stop returns and a slow consumer
// cannot wedge Stop against the block handler.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.emitting {
		c.mu.Unlock()
		return nil
	}
	c.emitting = false
	event := c.onEvent
	c.onFrame = nil
	c.onEvent = nil
	c.mu.Unlock()

	c.inflight.Wait()

	err := c.device.Stop()
	c.log.Info("capture_stopped")
	if event != nil {
		event(frames.NewSystemFrame(time.Now().UnixNano(), EventRecordingStopped, nil))
	}
	return errorsx.Wrap(err, errorsx.ReasonDeviceUnavailable)
}

func (c *Capture) handleBlock(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	c.mu.Lock()
	if !c.emitting {
		c.mu.Unlock()
		return
	}
	if !c.voiced {
		if silentBlock(pcm, c.cfg.SilenceThreshold) {
			c.mu.Unlock()
			return
		}
		c.voiced = true
	}
	c.seq++
	frame := frames.NewAudioFrame(time.Now().UnixNano(), c.seq, pcm, c.cfg.SampleRate, c.cfg.Channels, nil)
	deliver := c.onFrame
	if deliver != nil {
		c.inflight.Add(1)
	}
	c.mu.Unlock()

	// Deliver outside the lock so a slow consumer never stalls Stop; the
	// in-flight count is what Stop waits on instead.
	if deliver != nil {
		deliver(frame)
		c.inflight.Done()
	}
}

// silentBlock reports whether every 16-bit sample stays below the
// threshold.
func silentBlock(pcm []byte, threshold int16) bool {
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		if sample > threshold || sample < -threshold {
			return false
		}
	}
	return true
}

// Package miniaudio provides CaptureDevice/PlaybackDevice implementations
// backed by miniaudio (malgo). It is the fallback backend for hosts where
// PortAudio is unavailable.
package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/centavohq/voicecore/pkg/audio"
)

type CaptureClient struct {
	sampleRate int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	onAudio func([]byte)
}

func NewCaptureClient(sampleRate int) *CaptureClient {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &CaptureClient{sampleRate: sampleRate}
}

func (c *CaptureClient) Start(onAudio func(pcm []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("initializing miniaudio context: %w", err)
	}

	format := malgo.FormatS16
	channels := uint32(audio.DefaultChannels)
	bytesPerFrame := malgo.SampleSizeInBytes(format) * int(channels)

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(c.sampleRate)
	config.Capture.Format = format
	config.Capture.Channels = channels
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(audio.DefaultBlockSize)

	c.onAudio = onAudio
	device, err := malgo.InitDevice(ctx.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			c.mu.Lock()
			cb := c.onAudio
			c.mu.Unlock()
			if cb != nil {
				cb(pInput[:n])
			}
		},
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("starting capture device: %w", err)
	}
	c.ctx = ctx
	c.device = device
	return nil
}

func (c *CaptureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}
	c.onAudio = nil
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("stopping capture device: %w", err)
	}
	c.device.Uninit()
	c.device = nil
	_ = c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	return nil
}

type PlaybackClient struct {
	sampleRate int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	audioMu sync.Mutex
	pending []byte
}

func NewPlaybackClient(sampleRate int) *PlaybackClient {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &PlaybackClient{sampleRate: sampleRate}
}

func (c *PlaybackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("initializing miniaudio context: %w", err)
	}

	format := malgo.FormatS16
	channels := uint32(audio.DefaultChannels)
	bytesPerFrame := malgo.SampleSizeInBytes(format) * int(channels)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(c.sampleRate)
	config.Playback.Format = format
	config.Playback.Channels = channels
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(c.sampleRate / 10) // ~100ms
	config.Periods = 4

	device, err := malgo.InitDevice(ctx.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			c.audioMu.Lock()
			defer c.audioMu.Unlock()
			copied := copy(pOutput[:n], c.pending)
			c.pending = c.pending[copied:]
			for i := copied; i < n; i++ {
				pOutput[i] = 0
			}
		},
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("initializing playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("starting playback device: %w", err)
	}
	c.ctx = ctx
	c.device = device
	return nil
}

func (c *PlaybackClient) Write(pcm []byte) error {
	c.mu.Lock()
	started := c.device != nil
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("playback device not started")
	}
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.pending = append(c.pending, pcm...)
	return nil
}

func (c *PlaybackClient) Clear() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.pending = c.pending[:0]
}

func (c *PlaybackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("stopping playback device: %w", err)
	}
	c.device.Uninit()
	c.device = nil
	_ = c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	c.Clear()
	return nil
}

var (
	_ audio.CaptureDevice  = (*CaptureClient)(nil)
	_ audio.PlaybackDevice = (*PlaybackClient)(nil)
)

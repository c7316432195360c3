// Package audio owns the microphone side of the pipeline: device
// abstraction, PCM16 framing, silence gating and capture lifecycle.
package audio

// CaptureDevice is an exclusive handle on one input device. The device
// delivers 16-bit little-endian PCM blocks on its own goroutine.
type CaptureDevice interface {
	Start(onAudio func(pcm []byte)) error
	Stop() error
}

// PlaybackDevice is an exclusive handle on one output device. Write blocks
// until the device accepted the block; Clear drops device-internal buffers.
type PlaybackDevice interface {
	Start() error
	Write(pcm []byte) error
	Clear()
	Stop() error
}

const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	// DefaultBlockSize is samples per capture block, ~170ms at 24kHz.
	DefaultBlockSize = 4096
	// DefaultSilenceThreshold is the peak amplitude below which a block
	// counts as silent.
	DefaultSilenceThreshold = 500
)

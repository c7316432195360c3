// Package portaudio provides CaptureDevice/PlaybackDevice implementations
// backed by PortAudio default devices.
package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/centavohq/voicecore/pkg/audio"
)

type CaptureClient struct {
	sampleRate int
	blockSize  int

	mu      sync.Mutex
	stream  *portaudio.Stream
	in      []int16
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewCaptureClient(sampleRate, blockSize int) *CaptureClient {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if blockSize <= 0 {
		blockSize = audio.DefaultBlockSize
	}
	return &CaptureClient{sampleRate: sampleRate, blockSize: blockSize}
}

func (c *CaptureClient) Start(onAudio func(pcm []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	c.in = make([]int16, c.blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.sampleRate), c.blockSize, c.in)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("opening capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("starting capture stream: %w", err)
	}
	c.stream = stream
	c.stopCh = make(chan struct{})
	c.running = true

	c.wg.Add(1)
	go c.loop(stream.Read, onAudio, c.stopCh)
	return nil
}

const (
	// Transient read errors (overflows under load) are retried after a
	// short pause. A stream that fails this many reads in a row is gone;
	// the loop gives up instead of spinning on it.
	readRetryDelay  = 10 * time.Millisecond
	maxReadFailures = 50
)

func (c *CaptureClient) loop(read func() error, onAudio func([]byte), stopCh chan struct{}) {
	defer c.wg.Done()
	failures := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}
		if err := read(); err != nil {
			failures++
			if failures >= maxReadFailures {
				return
			}
			select {
			case <-stopCh:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		failures = 0
		buf := bytes.Buffer{}
		_ = binary.Write(&buf, binary.LittleEndian, c.in)
		onAudio(buf.Bytes())
	}
}

func (c *CaptureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	close(c.stopCh)
	c.wg.Wait()
	_ = c.stream.Stop()
	c.stream.Close()
	c.running = false
	return portaudio.Terminate()
}

type PlaybackClient struct {
	sampleRate int
	blockSize  int

	mu       sync.Mutex
	stream   *portaudio.Stream
	out      []int16
	leftover []byte
	running  bool
}

func NewPlaybackClient(sampleRate, blockSize int) *PlaybackClient {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if blockSize <= 0 {
		blockSize = audio.DefaultBlockSize
	}
	return &PlaybackClient{sampleRate: sampleRate, blockSize: blockSize}
}

func (c *PlaybackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	c.out = make([]int16, c.blockSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(c.sampleRate), c.blockSize, &c.out)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("opening playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("starting playback stream: %w", err)
	}
	c.stream = stream
	c.running = true
	return nil
}

// Write pushes PCM16 to the device in whole blocks. A trailing partial
// block is carried over to the next call.
func (c *PlaybackClient) Write(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return fmt.Errorf("playback device not started")
	}
	blockBytes := c.blockSize * 2
	data := append(c.leftover, pcm...)
	offset := 0
	for offset+blockBytes <= len(data) {
		_ = binary.Read(bytes.NewReader(data[offset:offset+blockBytes]), binary.LittleEndian, c.out)
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("writing playback block: %w", err)
		}
		offset += blockBytes
	}
	c.leftover = append(c.leftover[:0], data[offset:]...)
	return nil
}

func (c *PlaybackClient) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leftover = c.leftover[:0]
}

func (c *PlaybackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	_ = c.stream.Stop()
	c.stream.Close()
	c.leftover = nil
	c.running = false
	return portaudio.Terminate()
}

var (
	_ audio.CaptureDevice  = (*CaptureClient)(nil)
	_ audio.PlaybackDevice = (*PlaybackClient)(nil)
)

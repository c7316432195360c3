// Package playback orders synthesized audio chunks and feeds them to an
// output device, one chunk at a time, in arrival order. It is the single
// owner of the output device once started.
package playback

import (
	"log/slog"
	"sync"

	"github.com/centavohq/voicecore/pkg/audio"
	"github.com/centavohq/voicecore/pkg/logging"
)

// writeBlockBytes is the largest slice handed to the device per write.
// Interruption (Flush, Retire) takes effect at the next block boundary.
const writeBlockBytes = 4096

// retiredCap bounds the retired-generation set. Retirement must outlive the
// generation's lifecycle acks because the backend may still emit deltas for
// a cancelled generation after acknowledging the cancel; evicting only the
// oldest entries keeps that guarantee for every recent generation.
const retiredCap = 32

// Chunk is one unit of synthesized audio tagged with the generation that
// produced it.
type Chunk struct {
	Generation string
	PCM        []byte
}

// Queue plays chunks in FIFO order on a dedicated goroutine. Chunks from
// retired generations are dropped, whether already queued or yet to arrive.
type Queue struct {
	device audio.PlaybackDevice
	log    *slog.Logger

	mu           sync.Mutex
	cond         *sync.Cond
	items        []Chunk
	retired      map[string]struct{}
	retiredOrder []string
	epoch        uint64
	playing      bool
	closed       bool

	wg sync.WaitGroup
}

func NewQueue(device audio.PlaybackDevice, log *slog.Logger) *Queue {
	q := &Queue{
		device:  device,
		log:     logging.NewComponentLogger(log, "playback"),
		retired: make(map[string]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start opens the device and begins draining the queue. The queue owns the
// device until Close.
func (q *Queue) Start() error {
	if err := q.device.Start(); err != nil {
		return err
	}
	q.wg.Add(1)
	go q.loop()
	return nil
}

// Enqueue appends a chunk. Chunks for retired generations are dropped
// silently; the backend may still be streaming deltas for a generation we
// have already cancelled.
func (q *Queue) Enqueue(generation string, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if _, dead := q.retired[generation]; dead {
		return
	}
	q.items = append(q.items, Chunk{Generation: generation, PCM: pcm})
	q.cond.Broadcast()
}

// Retire marks a generation dead: its queued chunks are removed, future
// chunks are dropped on arrival, and if a chunk of that generation is
// currently being written it is cut off at the next block boundary.
func (q *Queue) Retire(generation string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, done := q.retired[generation]; done {
		return
	}
	q.retired[generation] = struct{}{}
	q.retiredOrder = append(q.retiredOrder, generation)
	if len(q.retiredOrder) > retiredCap {
		oldest := q.retiredOrder[0]
		q.retiredOrder = q.retiredOrder[1:]
		delete(q.retired, oldest)
	}

	kept := q.items[:0]
	dropped := 0
	for _, c := range q.items {
		if c.Generation == generation {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	q.items = kept
	q.epoch++
	q.device.Clear()
	if dropped > 0 || q.playing {
		q.log.Debug("generation_retired", "generation", generation, "dropped_chunks", dropped)
	}
	q.cond.Broadcast()
}

// Flush discards everything queued, interrupts the chunk in flight, and
// returns only after the playback goroutine has gone quiet. Audio enqueued
// after Flush returns plays normally.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
	q.epoch++
	q.device.Clear()
	q.cond.Broadcast()
	for q.playing && !q.closed {
		q.cond.Wait()
	}
	// A block write that raced the flush may have landed after the first
	// Clear. The goroutine is quiet now, so this one is final.
	q.device.Clear()
}

// IsPlaying reports whether a chunk is currently being written to the
// device.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Close flushes, stops the playback goroutine, and releases the device.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.items = nil
	q.epoch++
	q.device.Clear()
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
	return q.device.Stop()
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.playing = false
			q.cond.Broadcast()
			q.cond.Wait()
		}
		if q.closed {
			q.playing = false
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		chunk := q.items[0]
		q.items = q.items[1:]
		if _, dead := q.retired[chunk.Generation]; dead {
			q.mu.Unlock()
			continue
		}
		q.playing = true
		epoch := q.epoch
		q.mu.Unlock()

		q.play(chunk, epoch)
	}
}

// play writes the chunk block by block, abandoning it as soon as the epoch
// moves (Flush, Retire, Close).
func (q *Queue) play(chunk Chunk, epoch uint64) {
	pcm := chunk.PCM
	for len(pcm) > 0 {
		q.mu.Lock()
		stale := q.epoch != epoch
		q.mu.Unlock()
		if stale {
			return
		}

		n := writeBlockBytes
		if n > len(pcm) {
			n = len(pcm)
		}
		if err := q.device.Write(pcm[:n]); err != nil {
			q.log.Warn("playback_write_failed", "error", err, "generation", chunk.Generation)
			return
		}
		pcm = pcm[n:]
	}
}

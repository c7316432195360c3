package portaudio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// runLoop drives the capture read loop with a stubbed read so the tests
// need no audio hardware.
func runLoop(c *CaptureClient, read func() error, onAudio func([]byte)) chan struct{} {
	c.in = make([]int16, c.blockSize)
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	done := make(chan struct{})
	go func() {
		c.loop(read, onAudio, c.stopCh)
		close(done)
	}()
	return done
}

func TestCaptureLoopBailsAfterPersistentReadFailures(t *testing.T) {
	c := NewCaptureClient(24000, 8)

	var reads atomic.Int32
	done := runLoop(c, func() error {
		reads.Add(1)
		return errors.New("input overflowed")
	}, func([]byte) {
		t.Error("audio delivered from a failing stream")
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop kept spinning on a failing stream")
	}
	if got := int(reads.Load()); got != maxReadFailures {
		t.Fatalf("loop read %d times before giving up, want %d", got, maxReadFailures)
	}
}

func TestCaptureLoopStopsDuringRetryBackoff(t *testing.T) {
	c := NewCaptureClient(24000, 8)

	firstFailure := make(chan struct{})
	var once atomic.Bool
	done := runLoop(c, func() error {
		if once.CompareAndSwap(false, true) {
			close(firstFailure)
		}
		return errors.New("input overflowed")
	}, func([]byte) {})

	<-firstFailure
	close(c.stopCh)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop while backing off")
	}
}

func TestCaptureLoopResetsFailureCountOnSuccess(t *testing.T) {
	c := NewCaptureClient(24000, 4)

	var reads atomic.Int32
	var delivered atomic.Int32
	done := runLoop(c, func() error {
		// Alternate failure and success; the loop must keep going well
		// past the consecutive-failure cap.
		if reads.Add(1)%2 == 1 {
			return errors.New("input overflowed")
		}
		return nil
	}, func([]byte) { delivered.Add(1) })

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && delivered.Load() < int32(maxReadFailures) {
		time.Sleep(time.Millisecond)
	}
	close(c.stopCh)
	<-done

	if delivered.Load() < int32(maxReadFailures) {
		t.Fatalf("loop bailed early: only %d blocks delivered", delivered.Load())
	}
}

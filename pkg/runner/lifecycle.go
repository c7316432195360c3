package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LifecycleRunner blocks in Run until its context is cancelled, then drains
// the engine within the configured timeout. Stop may be called from any
// goroutine and is idempotent.
type LifecycleRunner struct {
	state   atomic.Int32
	cancel  context.CancelFunc
	stopper sync.Once
	hooks   Hooks
	drainer Drainer
	stopErr error
	timeout time.Duration
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &LifecycleRunner{
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		cancel:  func() {},
	}
	r.state.Store(int32(StateNew))
	return r
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errors.New("runner already started")
	}
	PrintBanner()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, r.cancel = context.WithCancel(ctx)
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.state.Store(int32(StateRunning))
	<-ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) stop() error {
	r.stopper.Do(func() {
		r.state.Store(int32(StateDraining))
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
	})
	return r.stopErr
}

// drain runs the drainer off-goroutine so a wedged flush cannot hold the
// process open past the timeout.
func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = r.drainer.Drain()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(r.timeout):
		return errors.New("drain timeout")
	}
}

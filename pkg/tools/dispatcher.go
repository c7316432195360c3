package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/centavohq/voicecore/pkg/errorsx"
)

// Request is a backend-issued tool call.
type Request struct {
	ID   string
	Name string
	Args map[string]any
}

// CallError is the structured error half of a Result.
type CallError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result answers exactly one Request. Either Payload or Err is set.
type Result struct {
	ID      string
	Payload any
	Err     *CallError
}

// Dispatcher resolves tool calls against the registry. Every request
// produces exactly one result: the backend blocks its generation on the
// answer, so errors and timeouts are answered too, never dropped.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	log      *slog.Logger
}

func NewDispatcher(registry *Registry, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{registry: registry, timeout: timeout, log: log}
}

// Dispatch runs the named handler with a bounded timeout and always returns
// a Result carrying the request id.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	handler, ok := d.registry.handler(req.Name)
	if !ok {
		d.log.Warn("tool_unknown", "tool_name", req.Name, "call_id", req.ID)
		return Result{ID: req.ID, Err: &CallError{
			Code:    string(errorsx.ReasonToolUnknown),
			Message: fmt.Sprintf("unknown tool %q", req.Name),
		}}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	payload, err := d.invoke(ctx, handler, req)
	elapsed := time.Since(started)

	switch {
	case err == nil:
		d.log.Debug("tool_call_ok", "tool_name", req.Name, "call_id", req.ID, "elapsed_ms", elapsed.Milliseconds())
		return Result{ID: req.ID, Payload: payload}
	case ctx.Err() != nil:
		d.log.Warn("tool_call_timeout", "tool_name", req.Name, "call_id", req.ID, "timeout_ms", d.timeout.Milliseconds())
		return Result{ID: req.ID, Err: &CallError{
			Code:    string(errorsx.ReasonToolTimeout),
			Message: fmt.Sprintf("tool %q timed out after %s", req.Name, d.timeout),
		}}
	default:
		d.log.Warn("tool_call_failed", "tool_name", req.Name, "call_id", req.ID, "error", err.Error())
		return Result{ID: req.ID, Err: &CallError{
			Code:    string(errorsx.ReasonToolFailed),
			Message: err.Error(),
		}}
	}
}

// invoke runs the handler on its own goroutine so a stuck collaborator
// cannot outlive the timeout. A panicking handler is converted to an error
// result rather than crashing the session.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, req Request) (any, error) {
	type outcome struct {
		payload any
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("tool %q panicked: %v", req.Name, r)}
			}
		}()
		payload, err := handler(ctx, req.Args)
		ch <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-ch:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

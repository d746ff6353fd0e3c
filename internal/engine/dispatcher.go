package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"media-dubber/internal/process"
	"media-dubber/internal/protocol"
)

// EventKind classifies outbound events for one run.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventStatus    EventKind = "status"
	EventSuccess   EventKind = "success"
	EventFailure   EventKind = "failure"
	EventCancelled EventKind = "cancelled"
)

// Event is one notification delivered to the UI side.
type Event struct {
	Kind     EventKind
	Progress protocol.Progress
	Message  string
	Result   protocol.Result
}

// Sink receives run events in order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) {
	if f != nil {
		f(e)
	}
}

// OutcomeKind is the terminal state of one run.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailure   OutcomeKind = "failure"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the single terminal result of a run.
type Outcome struct {
	Kind    OutcomeKind
	Result  protocol.Result
	Message string
	// ExitCode is the engine's exit status, or -1 when it never ran to exit.
	ExitCode int
	Stderr   string
	Err      error
}

// Dispatcher maps decoded lines and lifecycle signals to events, delivering at
// most one terminal event.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	stderr  strings.Builder
	outcome *Outcome
}

// NewDispatcher returns a dispatcher writing to sink.
func NewDispatcher(sink Sink, logger *slog.Logger) *Dispatcher {
	if sink == nil {
		sink = SinkFunc(nil)
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Dispatcher{sink: sink, logger: logger}
}

// Done reports whether a terminal event has been delivered.
func (d *Dispatcher) Done() bool {
	return d.outcome != nil
}

// Outcome returns the terminal outcome, if any.
func (d *Dispatcher) Outcome() (Outcome, bool) {
	if d.outcome == nil {
		return Outcome{}, false
	}
	return *d.outcome, true
}

// Line handles one decoded stdout line.
func (d *Dispatcher) Line(line protocol.Line) {
	if line.Opaque {
		d.logger.Debug("engine output", "line", line.Raw)
		return
	}
	if d.Done() {
		d.logger.Debug("engine message after outcome", "kind", line.Message.Kind)
		return
	}

	msg := line.Message
	switch msg.Kind {
	case protocol.KindProgress:
		d.sink.Emit(Event{Kind: EventProgress, Progress: msg.Progress})
	case protocol.KindStatus:
		d.sink.Emit(Event{Kind: EventStatus, Message: msg.Text})
	case protocol.KindSuccess:
		d.finish(Outcome{Kind: OutcomeSuccess, Result: msg.Result, ExitCode: -1})
	case protocol.KindError:
		d.finish(Outcome{
			Kind:     OutcomeFailure,
			Message:  msg.Text,
			ExitCode: -1,
			Err:      &EngineError{Message: msg.Text},
		})
	}
}

// Stderr accumulates one stderr chunk.
func (d *Dispatcher) Stderr(chunk []byte) {
	d.stderr.Write(chunk)
	d.logger.Debug("engine stderr", "text", strings.TrimRight(string(chunk), "\n"))
}

// Exit handles process termination. ctxErr is the run context's error, used
// to tell cancellation apart from a crash.
func (d *Dispatcher) Exit(code int, ctxErr error) {
	if out, ok := d.Outcome(); ok {
		d.outcome.ExitCode = code
		d.outcome.Stderr = d.stderr.String()
		d.logger.Debug("engine exit after outcome", "code", code, "outcome", out.Kind)
		return
	}
	if ctxErr != nil {
		d.cancel(ctxErr, code)
		return
	}

	stderr := d.stderr.String()
	if code != 0 {
		message := stderr
		if strings.TrimSpace(message) == "" {
			message = fmt.Sprintf("engine exited with code %d", code)
		}
		d.finish(Outcome{
			Kind:     OutcomeFailure,
			Message:  message,
			ExitCode: code,
			Stderr:   stderr,
			Err:      &ExitError{Code: code, Stderr: stderr},
		})
		return
	}

	d.finish(Outcome{
		Kind:     OutcomeFailure,
		Message:  ErrNoResult.Error(),
		ExitCode: 0,
		Stderr:   stderr,
		Err:      ErrNoResult,
	})
}

// Abort ends the run before or instead of a process exit: staging, spawn,
// locking and validation failures land here.
func (d *Dispatcher) Abort(err error) {
	if d.Done() || err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		d.cancel(err, -1)
		return
	}

	message := err.Error()
	var spawnErr *process.SpawnError
	if errors.As(err, &spawnErr) && spawnErr.Err != nil {
		message = spawnErr.Err.Error()
	}
	d.finish(Outcome{Kind: OutcomeFailure, Message: message, ExitCode: -1, Err: err})
}

func (d *Dispatcher) cancel(cause error, code int) {
	d.finish(Outcome{
		Kind:     OutcomeCancelled,
		Message:  "job cancelled",
		ExitCode: code,
		Stderr:   d.stderr.String(),
		Err:      cause,
	})
}

func (d *Dispatcher) finish(out Outcome) {
	d.outcome = &out
	switch out.Kind {
	case OutcomeSuccess:
		d.sink.Emit(Event{Kind: EventSuccess, Result: out.Result})
	case OutcomeCancelled:
		d.sink.Emit(Event{Kind: EventCancelled, Message: out.Message})
	default:
		d.sink.Emit(Event{Kind: EventFailure, Message: out.Message})
	}
}

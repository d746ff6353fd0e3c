package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"media-dubber/internal/domain"
	"media-dubber/internal/process"
	"media-dubber/internal/protocol"
)

const lockRetryDelay = 250 * time.Millisecond

// Stream is a running engine as seen by the bridge.
type Stream interface {
	Signals() <-chan process.Signal
}

// Launcher starts resolved commands.
type Launcher interface {
	Launch(ctx context.Context, cmd process.Command) (Stream, error)
}

// SupervisorLauncher adapts a process.Supervisor to Launcher.
type SupervisorLauncher struct {
	Supervisor *process.Supervisor
}

// Launch starts cmd under the supervisor.
func (l SupervisorLauncher) Launch(ctx context.Context, cmd process.Command) (Stream, error) {
	h, err := l.Supervisor.Start(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Bridge runs one engine job at a time and turns its output into events.
type Bridge struct {
	resolver *Resolver
	launcher Launcher
	logger   *slog.Logger

	mu sync.Mutex
}

// NewBridge wires a resolver and launcher together.
func NewBridge(resolver *Resolver, launcher Launcher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = discardLogger()
	}
	return &Bridge{resolver: resolver, launcher: launcher, logger: logger}
}

// Layout exposes the active deployment layout.
func (b *Bridge) Layout() Layout {
	return b.resolver.Layout()
}

// Run executes req, streaming events to sink. It blocks until the engine has
// exited and returns the single terminal outcome. The error is nil only for a
// successful run. ErrBusy is returned without any event when another run is
// in flight.
func (b *Bridge) Run(ctx context.Context, req domain.JobRequest, sink Sink) (Outcome, error) {
	if !b.mu.TryLock() {
		return Outcome{}, ErrBusy
	}
	defer b.mu.Unlock()

	logger := b.logger.With("input", req.InputPath, "lang", req.TargetLanguage)
	d := NewDispatcher(sink, logger)
	b.run(ctx, req, d, logger)

	out, ok := d.Outcome()
	if !ok {
		// Unreachable unless a Launcher closes its stream without an exit signal.
		d.Abort(fmt.Errorf("engine stream closed without exit"))
		out, _ = d.Outcome()
	}
	logger.Info("engine run finished", "outcome", out.Kind, "exit_code", out.ExitCode)
	if out.Kind == OutcomeSuccess {
		return out, nil
	}
	return out, out.Err
}

func (b *Bridge) run(ctx context.Context, req domain.JobRequest, d *Dispatcher, logger *slog.Logger) {
	unlock, err := LockStaging(ctx, b.resolver.Layout(), b.logger)
	if err != nil {
		d.Abort(err)
		return
	}
	defer unlock()

	cmd, err := b.resolver.Resolve(req)
	if err != nil {
		logger.Error("resolve engine command", "error", err)
		d.Abort(err)
		return
	}
	if err := ctx.Err(); err != nil {
		d.Abort(err)
		return
	}

	stream, err := b.launcher.Launch(ctx, cmd)
	if err != nil {
		d.Abort(err)
		return
	}

	decoder := protocol.NewDecoder()
	for sig := range stream.Signals() {
		switch sig.Kind {
		case process.SignalStdout:
			for _, line := range decoder.Feed(sig.Data) {
				d.Line(line)
			}
		case process.SignalStderr:
			d.Stderr(sig.Data)
		case process.SignalExit:
			if tail := decoder.Close(); len(tail) > 0 {
				logger.Debug("discard unterminated engine output", "bytes", len(tail))
			}
			d.Exit(sig.ExitCode, ctx.Err())
		}
	}
}

// LockStaging serialises work on the staged binary across processes sharing
// the staging directory. It waits until the lock is free or ctx ends and
// returns the release func. Development mode has no shared staged binary.
func LockStaging(ctx context.Context, layout Layout, logger *slog.Logger) (func(), error) {
	if layout.Mode != domain.DeploymentPackaged {
		return func() {}, nil
	}
	if logger == nil {
		logger = discardLogger()
	}

	if err := os.MkdirAll(layout.StagingDir, 0o755); err != nil {
		return nil, &StageError{Op: "mkdir", Path: layout.StagingDir, Err: err}
	}
	lockPath := layout.LockPath()
	lock := flock.New(lockPath)

	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &StageError{Op: "lock", Path: lockPath, Err: err}
	}
	if !ok {
		return nil, &StageError{Op: "lock", Path: lockPath, Err: ErrBusy}
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release staging lock", "path", filepath.Base(lockPath), "error", err)
		}
	}, nil
}

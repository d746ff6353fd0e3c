package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultGrace     = 5 * time.Second
	defaultChunkSize = 4 << 10
	signalBuffer     = 64
)

// Command is a fully resolved executable invocation.
type Command struct {
	Path string   `json:"path"`
	Args []string `json:"args"`
	// Env entries are appended to the parent environment.
	Env []string `json:"env,omitempty"`
	Dir string   `json:"dir,omitempty"`
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// SignalKind identifies what a Signal carries.
type SignalKind int

const (
	SignalStdout SignalKind = iota + 1
	SignalStderr
	SignalExit
)

func (k SignalKind) String() string {
	switch k {
	case SignalStdout:
		return "stdout"
	case SignalStderr:
		return "stderr"
	case SignalExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Signal is one asynchronous notification from a running child.
type Signal struct {
	Kind SignalKind
	// Data is set for stdout and stderr chunks. The slice is owned by the receiver.
	Data []byte
	// ExitCode is set for SignalExit; -1 when the process was killed or never
	// reported a code.
	ExitCode int
	// Err is the raw wait error for SignalExit, nil on a clean exit.
	Err error
}

// SpawnError reports that the child process could not be created at all.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTerminationGrace sets the delay between SIGTERM and SIGKILL.
func WithTerminationGrace(grace time.Duration) Option {
	return func(s *Supervisor) {
		if grace > 0 {
			s.grace = grace
		}
	}
}

// Supervisor spawns child processes and streams their output as signals.
type Supervisor struct {
	logger    *slog.Logger
	grace     time.Duration
	chunkSize int
}

// NewSupervisor builds a supervisor with optional overrides.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		grace:     defaultGrace,
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle owns one running child process.
type Handle struct {
	cmd     *exec.Cmd
	signals chan Signal
	done    chan struct{}
	grace   time.Duration
	logger  *slog.Logger

	terminateOnce sync.Once
}

// Start spawns the command. A non-nil error is always a *SpawnError and means
// no signals will follow. Cancelling ctx terminates the child's process group.
func (s *Supervisor) Start(ctx context.Context, command Command) (*Handle, error) {
	if strings.TrimSpace(command.Path) == "" {
		return nil, &SpawnError{Path: command.Path, Err: errors.New("executable path is empty")}
	}

	cmd := exec.Command(command.Path, command.Args...) //nolint:gosec
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	configureProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: command.Path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Path: command.Path, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		s.logger.Error("process spawn failed", "path", command.Path, "error", err)
		return nil, &SpawnError{Path: command.Path, Err: err}
	}
	s.logger.Info("process started", "pid", cmd.Process.Pid, "command", command.String())

	h := &Handle{
		cmd:     cmd,
		signals: make(chan Signal, signalBuffer),
		done:    make(chan struct{}),
		grace:   s.grace,
		logger:  s.logger,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go h.pump(&wg, stdout, SignalStdout, s.chunkSize)
	go h.pump(&wg, stderr, SignalStderr, s.chunkSize)

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()
		code := exitCode(cmd, waitErr)
		s.logger.Info("process exited", "pid", cmd.Process.Pid, "code", code)
		h.signals <- Signal{Kind: SignalExit, ExitCode: code, Err: waitErr}
		close(h.done)
		close(h.signals)
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Warn("process cancelled", "pid", cmd.Process.Pid, "reason", ctx.Err())
			_ = h.Terminate()
		case <-h.done:
		}
	}()

	return h, nil
}

// Signals returns the ordered notification stream. Chunks of one stream keep
// their arrival order; the exit signal is always last and the channel is
// closed after it.
func (h *Handle) Signals() <-chan Signal {
	return h.signals
}

// Pid returns the child's process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Done is closed after the child has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Terminate asks the process group to stop and kills it after the grace period.
func (h *Handle) Terminate() error {
	var err error
	h.terminateOnce.Do(func() {
		err = terminate(h.cmd, h.done, h.grace)
		if err != nil {
			h.logger.Warn("terminate engine", "pid", h.cmd.Process.Pid, "error", err)
		}
	})
	return err
}

// pump forwards raw chunks from one pipe until EOF.
func (h *Handle) pump(wg *sync.WaitGroup, r io.Reader, kind SignalKind, size int) {
	defer wg.Done()
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.signals <- Signal{Kind: kind, Data: chunk}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				h.logger.Debug("engine pipe read", "stream", kind.String(), "error", err)
			}
			return
		}
	}
}

// exitCode extracts the numeric exit status from a wait result.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"media-dubber/internal/config"
	"media-dubber/internal/diagnostics"
	"media-dubber/internal/domain"
	"media-dubber/internal/logging"
	"media-dubber/internal/process"
)

const (
	installCommandTimeout = 45 * time.Minute
	installOutputTail     = 500
)

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Runner == nil || a.checker == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostics are not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	var fixErr error
	switch id {
	case diagnostics.ItemFFmpeg:
		fixErr = a.installer().installFFmpeg(context.Background())
	case diagnostics.ItemStagingDir:
		fixErr = fixStagingDir(a.Runner.Layout().StagingDir)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if fixErr != nil {
		a.logger().Warn("diagnostic fix failed", "item", id, "error", fixErr)
	} else {
		a.logger().Info("diagnostic fix applied", "item", id)
	}

	report := a.refreshDiagnostics()
	return report, fixErr
}

// ensureLocalBinOnPATH prepends ~/.media-dubber/bin so user-provided tools
// are visible to the engine, which inherits this environment.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(config.AppDir(homeDir), "bin")
}

// fixStagingDir creates the staging directory and restores owner access.
func fixStagingDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("staging directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging directory %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		return fmt.Errorf("set staging directory permissions %s: %w", dir, err)
	}
	return nil
}

// ffmpegInstallOptions lists package managers to try, in order, for goos.
func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{
				manager: "winget",
				commands: [][]string{
					{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
				},
			},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{
				manager: "apt-get",
				commands: [][]string{
					{"apt-get", "update"},
					{"apt-get", "install", "-y", "ffmpeg"},
				},
			},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

// installer runs package-manager steps through the process supervisor so
// their output and exit codes end up in the app log.
type installer struct {
	supervisor *process.Supervisor
	logger     *slog.Logger
	goos       string
	lookPath   func(string) (string, error)
	timeout    time.Duration
}

func newInstaller(supervisor *process.Supervisor, logger *slog.Logger) *installer {
	if logger == nil {
		logger = logging.Discard()
	}
	if supervisor == nil {
		supervisor = process.NewSupervisor(process.WithLogger(logger))
	}
	return &installer{
		supervisor: supervisor,
		logger:     logger.With("component", "installer"),
		goos:       goruntime.GOOS,
		lookPath:   exec.LookPath,
		timeout:    installCommandTimeout,
	}
}

func (a *App) installer() *installer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installs == nil {
		a.installs = newInstaller(nil, a.logger())
	}
	return a.installs
}

func (in *installer) installFFmpeg(ctx context.Context) error {
	if err := in.installFirst(ctx, ffmpegInstallOptions(in.goos)); err != nil {
		return fmt.Errorf("install ffmpeg: %w", err)
	}
	if missing := in.missing("ffmpeg"); len(missing) > 0 {
		return fmt.Errorf("verify ffmpeg on PATH: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// installFirst stops at the first available manager whose steps all succeed.
func (in *installer) installFirst(ctx context.Context, options []installOption) error {
	var failures []error
	for _, option := range options {
		if !in.available(option.manager) {
			in.logger.Debug("package manager not found", "manager", option.manager)
			continue
		}
		err := in.runSteps(ctx, option.commands)
		if err == nil {
			in.logger.Info("install finished", "manager", option.manager)
			return nil
		}
		in.logger.Warn("package manager failed", "manager", option.manager, "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", option.manager, err))
	}

	if len(failures) == 0 {
		return fmt.Errorf("no supported package manager found for %s", in.goos)
	}
	return errors.Join(failures...)
}

func (in *installer) runSteps(ctx context.Context, steps [][]string) error {
	for _, step := range steps {
		if len(step) == 0 {
			return errors.New("empty command")
		}
		if err := in.runElevated(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// runElevated retries root-only managers through pkexec, then sudo -n.
func (in *installer) runElevated(ctx context.Context, step []string) error {
	attempts := [][]string{step}
	if in.goos == "linux" && requiresElevation(step[0]) {
		for _, wrapper := range [][]string{{"pkexec"}, {"sudo", "-n"}} {
			if in.available(wrapper[0]) {
				argv := append(append([]string{}, wrapper...), step...)
				attempts = append(attempts, argv)
			}
		}
	}

	var failures []error
	for _, argv := range attempts {
		err := in.run(ctx, process.Command{Path: argv[0], Args: argv[1:]})
		if err == nil {
			return nil
		}
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

func (in *installer) run(ctx context.Context, command process.Command) error {
	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	in.logger.Info("install step", "command", command.String())
	handle, err := in.supervisor.Start(ctx, command)
	if err != nil {
		return err
	}

	var tail []byte
	for sig := range handle.Signals() {
		switch sig.Kind {
		case process.SignalStdout, process.SignalStderr:
			in.logger.Debug("install output", "stream", sig.Kind.String(), "text", strings.TrimSpace(string(sig.Data)))
			tail = appendTail(tail, sig.Data, installOutputTail)
		case process.SignalExit:
			if sig.ExitCode == 0 && sig.Err == nil {
				return nil
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s timed out after %s", command, in.timeout)
			}
			if text := strings.TrimSpace(string(tail)); text != "" {
				return fmt.Errorf("%s exited with code %d (%s)", command, sig.ExitCode, text)
			}
			return fmt.Errorf("%s exited with code %d", command, sig.ExitCode)
		}
	}
	return fmt.Errorf("%s: output closed without exit", command)
}

func (in *installer) available(name string) bool {
	_, err := in.lookPath(name)
	return err == nil
}

func (in *installer) missing(names ...string) []string {
	var out []string
	for _, name := range names {
		if !in.available(name) {
			out = append(out, name)
		}
	}
	return out
}

// appendTail keeps the last limit bytes of output for error messages.
func appendTail(buf, chunk []byte, limit int) []byte {
	buf = append(buf, chunk...)
	if len(buf) > limit {
		buf = append([]byte(nil), buf[len(buf)-limit:]...)
	}
	return buf
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// configureProcessGroup puts the child in its own group so helper tools it
// launches are signalled together with it.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the group, then SIGKILL if it outlives grace.
func terminate(cmd *exec.Cmd, done <-chan struct{}, grace time.Duration) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := -cmd.Process.Pid
	if err := unix.Kill(pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	if err := unix.Kill(pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// Package daemon runs the announcement loop as a detached background process
// tracked by a PID file.
//
// The parent process calls Start, which re-executes the current binary with
// the given arguments in a new session, redirects its output to a log file and
// records its PID. The child calls Run, which blocks until SIGTERM or SIGINT
// and removes the PID file on exit. Stop signals the recorded process.
//
//	if err := daemon.Start("cratebot.pid", "cratebot.log", []string{"watch", "--daemon-child"}); err != nil {
//		return err
//	}
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning is returned by Stop when no daemon is recorded.
var ErrNotRunning = errors.New("daemon not running")

// Start launches the current executable with args as a background daemon.
// Its stdout and stderr are appended to logFile and its PID is written to
// pidFile.
func Start(pidFile, logFile string, args []string) error {
	running, err := IsRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running (PID file: %s)", pidFile)
	}

	logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := WritePID(pidFile, pid); err != nil {
		_ = cmd.Process.Kill()
		return err
	}

	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release process: %w", err)
	}

	return nil
}

// Run calls fn with a context that is cancelled on SIGTERM or SIGINT, then
// removes pidFile. It is the entry point of the daemon child.
func Run(ctx context.Context, pidFile string, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	runErr := fn(ctx)

	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return errors.Join(runErr, fmt.Errorf("failed to remove PID file: %w", err))
	}
	return runErr
}

// Stop sends SIGTERM to the daemon recorded in pidFile and waits up to
// timeout for it to exit. A zero timeout does not wait.
func Stop(pidFile string, timeout time.Duration) error {
	pid, err := ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w (PID file not found)", ErrNotRunning)
		}
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if process.Signal(syscall.Signal(0)) != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if timeout > 0 {
		return fmt.Errorf("process %d did not exit within %s", pid, timeout)
	}
	return nil
}

// IsRunning reports whether the process in pidFile is alive. A stale PID
// file is removed.
func IsRunning(pidFile string) (bool, error) {
	pid, err := ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return false, nil
		}
		return false, err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidFile)
		return false, nil
	}

	return true, nil
}

// ReadPID parses the PID stored in pidFile.
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// WritePID records pid in pidFile.
func WritePID(pidFile string, pid int) error {
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

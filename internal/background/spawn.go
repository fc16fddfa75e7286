package background

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Start when the PID file names a live
// process.
var ErrAlreadyRunning = errors.New("background process already running")

const pollInterval = 100 * time.Millisecond

// Spawner starts detached child processes of Executable.
type Spawner struct {
	Executable string
	Args       []string // prepended to the arguments passed to Start
	Env        []string // added to the parent's environment
	PIDFile    string
	LogFile    string
	Log        *zap.Logger
}

// Child is a started detached process.
type Child struct {
	PID  int
	done chan struct{}
	err  error
}

// Wait blocks until the child exits or ctx is done. A ctx error leaves the
// child running.
func (c *Child) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the executable with args in a new session, stdout and
// stderr appended to LogFile. The child's PID is written to PIDFile.
func (s *Spawner) Start(args ...string) (*Child, error) {
	running, pid, err := IsRunning(s.PIDFile)
	if err != nil {
		return nil, fmt.Errorf("failed to check background status: %w", err)
	}
	if running {
		return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}

	executable := s.Executable
	if executable == "" {
		if executable, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logF, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()

	cmd := exec.Command(executable, append(append([]string{}, s.Args...), args...)...)
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.Stdin = nil
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start background process: %w", err)
	}

	child := &Child{PID: cmd.Process.Pid, done: make(chan struct{})}
	if err := writePID(s.PIDFile, child.PID); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, err
	}
	go func() {
		child.err = cmd.Wait()
		close(child.done)
	}()

	if s.Log != nil {
		s.Log.Info("background process started",
			zap.Int("pid", child.PID),
			zap.Strings("args", cmd.Args[1:]))
	}
	return child, nil
}

// WaitForExit polls until the process named in PIDFile is gone or ctx is
// done. It is used to wait on a child started by another process.
func (s *Spawner) WaitForExit(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		running, _, err := IsRunning(s.PIDFile)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

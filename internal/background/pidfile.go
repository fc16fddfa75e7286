package background

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadPID returns the PID stored in pidFile, or 0 when the file is missing
// or does not hold a number.
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// IsRunning checks if the process recorded in pidFile is alive. A PID file
// naming a dead process is removed.
func IsRunning(pidFile string) (bool, int, error) {
	pid, err := ReadPID(pidFile)
	if err != nil || pid == 0 {
		return false, 0, err
	}
	if !processAlive(pid) {
		os.Remove(pidFile)
		return false, 0, nil
	}
	return true, pid, nil
}

func writePID(pidFile string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// RunChild is called by the detached child. It records its own PID, runs
// fn and removes the PID file if it still names this process.
func RunChild(pidFile string, fn func() error) error {
	self := os.Getpid()
	if err := writePID(pidFile, self); err != nil {
		return err
	}
	defer func() {
		if pid, _ := ReadPID(pidFile); pid == self {
			os.Remove(pidFile)
		}
	}()
	return fn()
}

package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const (
	// DefaultLockTimeout bounds how long a patch waits for another process.
	DefaultLockTimeout = 10 * time.Second
	// StaleLockAge is the age after which a lock file is assumed abandoned.
	StaleLockAge = 30 * time.Second

	lockPoll = 250 * time.Millisecond
)

// ErrLocked is returned when the settings lock could not be taken in time.
var ErrLocked = errors.New("settings file is locked by another process")

type fileLock struct {
	path string
}

func lockPath(settingsPath string) string {
	return settingsPath + ".lock"
}

// acquireLock creates the lock file next to settingsPath with O_EXCL. While
// another process holds it, acquireLock waits for the file to disappear.
func acquireLock(ctx context.Context, settingsPath string) (*fileLock, error) {
	path := lockPath(settingsPath)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintln(f, strconv.Itoa(os.Getpid()))
			f.Close()
			return &fileLock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock %s: %w", path, err)
		}

		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > StaleLockAge {
			if err := breakStale(path, info); err != nil {
				return nil, fmt.Errorf("failed to break stale lock %s: %w", path, err)
			}
			continue
		}

		if err := waitRemoved(ctx, path); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
			}
			return nil, err
		}
	}
}

// breakStale deletes the lock file that was judged stale. It is renamed
// aside first; when the moved file is not the one judged (another waiter
// broke the stale lock and took a fresh one meanwhile), it is linked back.
func breakStale(path string, judged fs.FileInfo) error {
	aside := path + ".stale-" + uuid.NewString()
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer os.Remove(aside)

	moved, err := os.Stat(aside)
	if err != nil {
		return err
	}
	if !os.SameFile(judged, moved) || !moved.ModTime().Equal(judged.ModTime()) {
		if err := os.Link(aside, path); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return nil
}

func (l *fileLock) release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// waitRemoved blocks until path no longer exists. Events come from fsnotify
// on the parent directory; a slow poll covers filesystems without inotify.
func waitRemoved(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return pollRemoved(ctx, path)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return pollRemoved(ctx, path)
	}
	if gone(path) {
		return nil
	}

	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()
	want := filepath.Clean(path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return pollRemoved(ctx, path)
			}
			if filepath.Clean(ev.Name) == want && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return nil
			}
		case _, ok := <-w.Errors:
			if !ok {
				return pollRemoved(ctx, path)
			}
		case <-ticker.C:
			if gone(path) || stale(path) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func pollRemoved(ctx context.Context, path string) error {
	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()
	for {
		if gone(path) || stale(path) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func gone(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func stale(path string) bool {
	info, err := os.Stat(path)
	return err == nil && time.Since(info.ModTime()) > StaleLockAge
}

package installer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrNotInstalled is returned when no installation record exists.
var ErrNotInstalled = errors.New("docmirror is not installed (run 'docmirror install')")

// Record is the installation record kept in the state directory.
// Remote and Branch are what the mirror was installed from; they win over
// the config file until the next install.
type Record struct {
	InstallPath string    `json:"install_path"`
	Remote      string    `json:"remote,omitempty"`
	Branch      string    `json:"branch,omitempty"`
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installed_at"`
}

// ReadRecord loads the record at path.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotInstalled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read install record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse install record %s: %w", path, err)
	}
	return &r, nil
}

// WriteRecord writes rec to path. The installed_at of an existing record is
// kept, so re-installing the same version into the same place rewrites
// identical bytes.
func WriteRecord(path string, rec Record) (*Record, error) {
	if prev, err := ReadRecord(path); err == nil && !prev.InstalledAt.IsZero() {
		rec.InstalledAt = prev.InstalledAt
	}
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now().UTC().Truncate(time.Second)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal install record: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write install record: %w", err)
	}
	return &rec, nil
}

// RemoveRecord deletes the record. A missing record is not an error.
func RemoveRecord(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove install record: %w", err)
	}
	return nil
}

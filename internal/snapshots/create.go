package snapshots

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/docmirror/internal/store"
)

// DefaultKeep is how many backups Prune leaves in place.
const DefaultKeep = 20

// CreateBackup copies source into the backup directory and records it.
// A missing source returns (nil, nil): there is nothing to undo to.
func (m *Manager) CreateBackup(source, reason string) (*store.Backup, error) {
	data, err := os.ReadFile(source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}

	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := time.Now()
	// settings-YYYY-MM-DD-HHMMSS.nnnnnnnnn.json keeps names unique and sortable.
	name := fmt.Sprintf("settings-%s.json", now.Format("2006-01-02-150405.000000000"))
	backupPath := filepath.Join(m.backupDir, name)

	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write backup file: %w", err)
	}

	b := &store.Backup{
		CreatedAt:  now,
		Reason:     reason,
		SourcePath: source,
		BackupPath: backupPath,
		SizeBytes:  int64(len(data)),
	}
	if _, err := m.store.InsertBackup(b); err != nil {
		// Try to clean up the file if DB insert fails
		os.Remove(backupPath)
		return nil, fmt.Errorf("failed to insert backup into database: %w", err)
	}

	return b, nil
}

// ListBackups returns all backups, newest first.
func (m *Manager) ListBackups() ([]*store.Backup, error) {
	backups, err := m.store.ListBackups()
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return backups, nil
}

// Prune deletes all but the newest keep backups, file and row alike.
func (m *Manager) Prune(keep int) (int, error) {
	backups, err := m.store.ListBackups()
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}
	if keep < 0 {
		keep = 0
	}

	deleted := 0
	for i, b := range backups {
		if i < keep {
			continue
		}
		if err := os.Remove(b.BackupPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deleted, fmt.Errorf("failed to delete backup file %s: %w", b.BackupPath, err)
		}
		if err := m.store.DeleteBackup(b.ID); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %d: %w", b.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// RemoveAll deletes every backup and the backup directory.
func (m *Manager) RemoveAll() error {
	if _, err := m.Prune(0); err != nil {
		return err
	}
	if err := os.RemoveAll(m.backupDir); err != nil {
		return fmt.Errorf("failed to remove backup directory: %w", err)
	}
	return nil
}

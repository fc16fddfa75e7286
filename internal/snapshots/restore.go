package snapshots

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blackwell-systems/docmirror/internal/store"
)

// ErrNoBackups is returned by RestoreLatest when nothing was backed up.
var ErrNoBackups = errors.New("no settings backups recorded")

// RestoreBackup writes the backup with the given ID over its source file.
// The current content is backed up first with reason "undo", so a restore
// can itself be undone.
func (m *Manager) RestoreBackup(ctx context.Context, id int64) (*store.Backup, error) {
	b, err := m.store.GetBackup(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	if err := m.restore(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// RestoreLatest restores the most recent backup.
func (m *Manager) RestoreLatest(ctx context.Context) (*store.Backup, error) {
	b, err := m.store.LatestBackup()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoBackups
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest backup: %w", err)
	}
	if err := m.restore(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (m *Manager) restore(ctx context.Context, b *store.Backup) error {
	data, err := os.ReadFile(b.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to load backup file: %w", err)
	}

	if _, err := m.CreateBackup(b.SourcePath, "undo"); err != nil {
		return fmt.Errorf("failed to back up current settings: %w", err)
	}

	if err := m.writer.Replace(ctx, b.SourcePath, data); err != nil {
		return fmt.Errorf("failed to restore %s: %w", b.SourcePath, err)
	}
	return nil
}

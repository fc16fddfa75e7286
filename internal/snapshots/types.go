// Package snapshots keeps copies of the host settings file taken before
// docmirror patches it, so a patch can be undone.
package snapshots

import (
	"context"

	"github.com/blackwell-systems/docmirror/internal/store"
)

// Writer replaces the content of a settings file.
type Writer interface {
	Replace(ctx context.Context, path string, data []byte) error
}

// Manager manages backup creation, restoration, and cleanup.
type Manager struct {
	store     *store.Store
	backupDir string
	writer    Writer
}

// New creates a new backup Manager. writer performs restores.
func New(store *store.Store, backupDir string, writer Writer) *Manager {
	return &Manager{
		store:     store,
		backupDir: backupDir,
		writer:    writer,
	}
}

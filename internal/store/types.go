package store

import "time"

// Sync triggers.
const (
	TriggerInstall   = "install"
	TriggerManual    = "manual"
	TriggerFreshness = "freshness"
)

// SyncEvent records one attempt to bring the mirror up to date.
type SyncEvent struct {
	ID         string
	Trigger    string
	Outcome    string // cloned, pulled, up-to-date, conflict, failed
	HeadBefore string
	HeadAfter  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the attempt took.
func (e *SyncEvent) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// FreshnessState is the result of the most recent freshness check.
type FreshnessState struct {
	LastChecked time.Time
	BehindBy    int
	LocalHead   string
	RemoteHead  string
	Outcome     string
	Error       string
}

// Backup is a saved copy of the settings file taken before a patch.
type Backup struct {
	ID         int64
	CreatedAt  time.Time
	Reason     string
	SourcePath string
	BackupPath string
	SizeBytes  int64
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Sync event operations

// InsertSyncEvent records a sync attempt. An empty ID is filled with a
// random UUID.
func (s *Store) InsertSyncEvent(e *SyncEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `
		INSERT INTO sync_events
		(id, trigger, outcome, head_before, head_after, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		e.ID,
		e.Trigger,
		e.Outcome,
		e.HeadBefore,
		e.HeadAfter,
		e.Error,
		formatTime(e.StartedAt),
		formatTime(e.FinishedAt),
	)
	if err != nil {
		return wrap("insert sync event", err)
	}
	return nil
}

// ListSyncEvents returns the most recent sync events, newest first. A limit
// of zero or less returns all events.
func (s *Store) ListSyncEvents(limit int) ([]*SyncEvent, error) {
	query := `
		SELECT id, trigger, outcome, head_before, head_after, error, started_at, finished_at
		FROM sync_events
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrap("list sync events", err)
	}
	return scanSyncEvents(rows)
}

func scanSyncEvents(rows *sql.Rows) ([]*SyncEvent, error) {
	defer rows.Close()

	var events []*SyncEvent
	for rows.Next() {
		var e SyncEvent
		var headBefore, headAfter, errText sql.NullString
		var startedAt, finishedAt string

		if err := rows.Scan(
			&e.ID,
			&e.Trigger,
			&e.Outcome,
			&headBefore,
			&headAfter,
			&errText,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync event row: %w", err)
		}
		e.HeadBefore = headBefore.String
		e.HeadAfter = headAfter.String
		e.Error = errText.String

		var err error
		if e.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at for %s: %w", e.ID, err)
		}
		if e.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for %s: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync events: %w", err)
	}
	return events, nil
}

// GetSyncEvent retrieves a sync event by ID.
func (s *Store) GetSyncEvent(id string) (*SyncEvent, error) {
	query := `
		SELECT id, trigger, outcome, head_before, head_after, error, started_at, finished_at
		FROM sync_events
		WHERE id = ?
	`
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, wrap("get sync event", err)
	}
	events, err := scanSyncEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("sync event %s: %w", id, ErrNotFound)
	}
	return events[0], nil
}

// LastSyncEvent returns the newest sync event, or ErrNotFound.
func (s *Store) LastSyncEvent() (*SyncEvent, error) {
	events, err := s.ListSyncEvents(1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no sync events: %w", ErrNotFound)
	}
	return events[0], nil
}

// PruneSyncEvents keeps the newest keep events and deletes the rest.
func (s *Store) PruneSyncEvents(keep int) (int64, error) {
	query := `
		DELETE FROM sync_events
		WHERE id NOT IN (
			SELECT id FROM sync_events ORDER BY started_at DESC LIMIT ?
		)
	`
	result, err := s.db.Exec(query, keep)
	if err != nil {
		return 0, wrap("prune sync events", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return n, nil
}

// Freshness operations

// GetFreshness returns the stored freshness state, or ErrNotFound when no
// check has run yet.
func (s *Store) GetFreshness() (*FreshnessState, error) {
	query := `
		SELECT last_checked, behind_by, local_head, remote_head, outcome, error
		FROM freshness
		WHERE id = 1
	`

	var st FreshnessState
	var lastChecked string
	var localHead, remoteHead, outcome, errText sql.NullString

	err := s.db.QueryRow(query).Scan(
		&lastChecked,
		&st.BehindBy,
		&localHead,
		&remoteHead,
		&outcome,
		&errText,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no freshness check recorded: %w", ErrNotFound)
	}
	if err != nil {
		return nil, wrap("get freshness state", err)
	}

	st.LastChecked, err = parseTime(lastChecked)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_checked: %w", err)
	}
	st.LocalHead = localHead.String
	st.RemoteHead = remoteHead.String
	st.Outcome = outcome.String
	st.Error = errText.String
	return &st, nil
}

// SaveFreshness replaces the stored freshness state.
func (s *Store) SaveFreshness(st *FreshnessState) error {
	query := `
		INSERT OR REPLACE INTO freshness
		(id, last_checked, behind_by, local_head, remote_head, outcome, error)
		VALUES (1, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		formatTime(st.LastChecked),
		st.BehindBy,
		st.LocalHead,
		st.RemoteHead,
		st.Outcome,
		st.Error,
	)
	if err != nil {
		return wrap("save freshness state", err)
	}
	return nil
}

// Settings backup operations

// InsertBackup records a settings backup and returns its ID.
func (s *Store) InsertBackup(b *Backup) (int64, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO settings_backups (created_at, reason, source_path, backup_path, size_bytes)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		formatTime(b.CreatedAt),
		b.Reason,
		b.SourcePath,
		b.BackupPath,
		b.SizeBytes,
	)
	if err != nil {
		return 0, wrap("insert backup", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get backup ID: %w", err)
	}
	b.ID = id
	return id, nil
}

// GetBackup retrieves a backup by ID.
func (s *Store) GetBackup(id int64) (*Backup, error) {
	query := `
		SELECT id, created_at, reason, source_path, backup_path, size_bytes
		FROM settings_backups
		WHERE id = ?
	`

	b, err := scanBackup(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backup %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(fmt.Sprintf("get backup %d", id), err)
	}
	return b, nil
}

// LatestBackup returns the most recent backup, or ErrNotFound.
func (s *Store) LatestBackup() (*Backup, error) {
	query := `
		SELECT id, created_at, reason, source_path, backup_path, size_bytes
		FROM settings_backups
		ORDER BY id DESC
		LIMIT 1
	`

	b, err := scanBackup(s.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no backups: %w", ErrNotFound)
	}
	if err != nil {
		return nil, wrap("get latest backup", err)
	}
	return b, nil
}

// ListBackups returns all backups, newest first.
func (s *Store) ListBackups() ([]*Backup, error) {
	query := `
		SELECT id, created_at, reason, source_path, backup_path, size_bytes
		FROM settings_backups
		ORDER BY id DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrap("list backups", err)
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}
	return backups, nil
}

// DeleteBackup removes a backup row. The file on disk is the caller's.
func (s *Store) DeleteBackup(id int64) error {
	result, err := s.db.Exec("DELETE FROM settings_backups WHERE id = ?", id)
	if err != nil {
		return wrap(fmt.Sprintf("delete backup %d", id), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("backup %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackup(row rowScanner) (*Backup, error) {
	var b Backup
	var createdAt string
	var reason sql.NullString

	if err := row.Scan(
		&b.ID,
		&createdAt,
		&reason,
		&b.SourcePath,
		&b.BackupPath,
		&b.SizeBytes,
	); err != nil {
		return nil, err
	}
	b.Reason = reason.String

	var err error
	b.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for backup %d: %w", b.ID, err)
	}
	return &b, nil
}

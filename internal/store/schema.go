package store

const schema = `
CREATE TABLE IF NOT EXISTS sync_events (
    id TEXT PRIMARY KEY,
    trigger TEXT NOT NULL,
    outcome TEXT NOT NULL,
    head_before TEXT,
    head_after TEXT,
    error TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS freshness (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_checked TEXT NOT NULL,
    behind_by INTEGER NOT NULL DEFAULT 0,
    local_head TEXT,
    remote_head TEXT,
    outcome TEXT,
    error TEXT
);

CREATE TABLE IF NOT EXISTS settings_backups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    reason TEXT,
    source_path TEXT NOT NULL,
    backup_path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_started ON sync_events(started_at);
CREATE INDEX IF NOT EXISTS idx_backups_created ON settings_backups(created_at);
`

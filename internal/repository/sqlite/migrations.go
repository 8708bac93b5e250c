package sqlite

import "fmt"

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY,
	full_name  TEXT    NOT NULL,
	role       TEXT    NOT NULL DEFAULT 'staff' CHECK(role IN ('manager', 'staff')),
	position   TEXT    NOT NULL DEFAULT '',
	sector     TEXT CHECK(sector IN ('bar', 'hall', 'kitchen')),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS task (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	title              TEXT    NOT NULL CHECK(title <> ''),
	description        TEXT    NOT NULL DEFAULT '',
	executor_id        INTEGER REFERENCES users(id) ON DELETE SET NULL,
	sector             TEXT CHECK(sector IN ('bar', 'hall', 'kitchen')),
	manager_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	deadline           INTEGER,
	status             TEXT    NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'overdue', 'completed')),
	comment            TEXT,
	photo_ids          TEXT    NOT NULL DEFAULT '[]',
	notified_one_day   INTEGER NOT NULL DEFAULT 0,
	notified_today     INTEGER NOT NULL DEFAULT 0,
	notified_two_hours INTEGER NOT NULL DEFAULT 0,
	notified_overdue   INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL,
	completed_at       INTEGER,
	CHECK(executor_id IS NULL OR sector IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_task_status_deadline ON task(status, deadline);

CREATE TABLE IF NOT EXISTS task_audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL,
	action      TEXT    NOT NULL,
	entity_type TEXT    NOT NULL DEFAULT 'task',
	entity_id   INTEGER NOT NULL,
	old_values  TEXT,
	new_values  TEXT,
	changes     TEXT,
	changed_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_audit_entity ON task_audit(entity_type, entity_id);
`,
	},
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
	}
	return nil
}

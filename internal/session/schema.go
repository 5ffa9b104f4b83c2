package session

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades a database from user_version i to i+1.
// Append only: existing entries must never change.
var migrations = []string{
	`
CREATE TABLE settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE recent_projects (
    path TEXT PRIMARY KEY,
    opened_at TEXT NOT NULL
);
CREATE INDEX idx_recent_opened_at ON recent_projects(opened_at);
`,
}

// SchemaVersion is the user_version a fully migrated database carries.
var SchemaVersion = len(migrations)

// Migrate brings db up to SchemaVersion. Each pending step runs in its own
// transaction together with the user_version bump. A database written by a
// newer cogmap is refused rather than downgraded, and one that is already
// current gets a quick_check.
func Migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	switch {
	case version > SchemaVersion:
		return fmt.Errorf("session database schema v%d is newer than supported v%d", version, SchemaVersion)
	case version == SchemaVersion:
		return quickCheck(ctx, db)
	}

	for v := version; v < SchemaVersion; v++ {
		if err := step(ctx, db, v); err != nil {
			return fmt.Errorf("migrating to v%d: %w", v+1, err)
		}
	}
	return nil
}

func step(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return err
	}
	// PRAGMA arguments cannot be bound.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, from+1)); err != nil {
		return err
	}
	return tx.Commit()
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check(1)`).Scan(&result); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("session database is damaged: %s", result)
	}
	return nil
}

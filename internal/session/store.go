// Package session persists state that outlives one server process: the
// last opened project, the recent projects list and user settings.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// MaxRecentProjects caps the recent projects list.
const MaxRecentProjects = 10

const lastOpenedKey = "last_opened"

// RecentProject is one entry of the recent projects list.
type RecentProject struct {
	Path     string    `json:"path"`
	OpenedAt time.Time `json:"opened_at"`
}

// Store is the SQLite-backed session database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DefaultDBPath returns ~/.cogmap/session.db.
func DefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cogmap", "session.db"), nil
}

// Open opens or creates the session database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastOpened returns the last opened project path, or "" if none was recorded.
func (s *Store) LastOpened(ctx context.Context) (string, error) {
	v, _, err := s.Setting(ctx, lastOpenedKey)
	return v, err
}

// RecordOpened marks path as the last opened project and moves it to the
// front of the recent list, dropping entries beyond MaxRecentProjects.
func (s *Store) RecordOpened(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("project path is required")
	}
	ts := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertSetting, lastOpenedKey, path, ts); err != nil {
		return fmt.Errorf("failed to record last opened: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recent_projects (path, opened_at) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET opened_at = excluded.opened_at`,
		path, ts); err != nil {
		return fmt.Errorf("failed to record recent project: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recent_projects WHERE path NOT IN (
		     SELECT path FROM recent_projects ORDER BY opened_at DESC, path LIMIT ?)`,
		MaxRecentProjects); err != nil {
		return fmt.Errorf("failed to trim recent projects: %w", err)
	}
	return tx.Commit()
}

// RecentProjects returns the recent projects, most recent first.
func (s *Store) RecentProjects(ctx context.Context) ([]RecentProject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, opened_at FROM recent_projects ORDER BY opened_at DESC, path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent projects: %w", err)
	}
	defer rows.Close()

	var out []RecentProject
	for rows.Next() {
		var rp RecentProject
		var openedAt string
		if err := rows.Scan(&rp.Path, &openedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent project: %w", err)
		}
		rp.OpenedAt, _ = time.Parse(time.RFC3339Nano, openedAt)
		out = append(out, rp)
	}
	return out, rows.Err()
}

// ForgetProject removes path from the recent list. If it was the last
// opened project, that record is cleared too.
func (s *Store) ForgetProject(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recent_projects WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to remove recent project: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM settings WHERE key = ? AND value = ?`, lastOpenedKey, path); err != nil {
		return fmt.Errorf("failed to clear last opened: %w", err)
	}
	return tx.Commit()
}

const upsertSetting = `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// Setting returns the value stored under key and whether it exists.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return v, true, nil
}

// SetSetting stores value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("setting key is required")
	}
	if _, err := s.db.ExecContext(ctx, upsertSetting, key, value, s.timestamp()); err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// Settings returns every stored setting.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// timestamp renders now in a form that sorts lexically.
func (s *Store) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

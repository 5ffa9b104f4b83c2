// Package backup keeps checksummed copies of project files before they are
// overwritten, and restores them on request.
package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/cogmap/internal/models"
)

// fileSuffix is appended to every backup file name.
const fileSuffix = ".json.gz"

// filePrefix starts every backup file name.
const filePrefix = "cogmap-backup-"

// DefaultBackupDir returns the default backup directory (~/.cogmap/backups/).
func DefaultBackupDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cogmap", "backups"), nil
}

// GeneratePath creates a timestamped backup filename in dir for the given
// project file. The timestamp comes first so names sort chronologically.
func GeneratePath(dir, source string, now time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	ts := now.UTC().Format("20060102-150405.000000")
	return filepath.Join(dir, filePrefix+ts+"-"+stem+fileSuffix)
}

// Manager writes project backups into one directory and prunes them.
type Manager struct {
	dir        string
	retention  Retention
	compressed bool
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention sets the limits enforced after every backup.
func WithRetention(r Retention) Option {
	return func(m *Manager) { m.retention = r }
}

// WithCompression toggles gzip compression of payloads. Default: on.
func WithCompression(on bool) Option {
	return func(m *Manager) { m.compressed = on }
}

// WithClock sets the time source used for names and headers.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager writing into dir.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:        dir,
		compressed: true,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// BackupFile copies the current contents of the project file at source into
// a new backup. A missing source is not an error and returns "".
func (m *Manager) BackupFile(source string) (string, error) {
	payload, err := os.ReadFile(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", filepath.Base(source), err)
	}

	now := m.now()
	h := Header{
		CreatedAt:  now.UTC(),
		Source:     source,
		Compressed: m.compressed,
	}
	// Counts are informational; a file that no longer parses is still backed up.
	if doc, err := models.DecodeCognitiveMap(payload); err == nil {
		h.NodeCount = len(doc.Nodes)
		h.EdgeCount = len(doc.Edges)
		h.ScenarioCount = len(doc.FCM.Scenarios)
	}

	path := GeneratePath(m.dir, source, now)
	if err := Write(path, payload, h); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	m.logger.Debug("project backed up", "backup", filepath.Base(path), "nodes", h.NodeCount)

	if !m.retention.IsZero() {
		removed, err := Prune(m.dir, m.retention, now)
		if err != nil {
			m.logger.Warn("backup retention failed", "error", err)
		} else if len(removed) > 0 {
			m.logger.Debug("pruned backups", "count", len(removed))
		}
	}
	return path, nil
}

// Restore reads a backup and decodes its payload as a cognitive map.
func Restore(path string) (*models.CognitiveMap, *Header, error) {
	h, payload, err := Read(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := models.DecodeCognitiveMap(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding backup payload: %w", err)
	}
	return doc, h, nil
}

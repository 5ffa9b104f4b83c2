// Package project binds the active cognitive map to a file on disk: open,
// save, save-as and new, with an auto-save of unsaved work before switching.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/pathutil"
	"github.com/nvandessel/cogmap/internal/store"
)

// Backuper copies a project file aside before it is overwritten.
// An empty path with a nil error means there was nothing to copy.
type Backuper interface {
	BackupFile(source string) (string, error)
}

// Info describes the active project.
type Info struct {
	FilePath string             `json:"file_path"`
	Dirty    bool               `json:"dirty"`
	History  models.HistoryInfo `json:"history"`
}

// Gateway moves documents between the store and project files.
// It serializes file switches with its own mutex; document state lives in
// the store.
type Gateway struct {
	mu      sync.Mutex
	store   *store.MapStore
	active  string
	backups Backuper
	logger  *slog.Logger

	// onActivate is called under mu whenever active changes to a file
	// that exists on disk.
	onActivate func(path string)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBackups enables a copy of the previous file contents before each overwrite.
func WithBackups(b Backuper) Option {
	return func(g *Gateway) { g.backups = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithActivateListener registers fn to be told each time a project file
// becomes active through Open, SaveAs or NewProject. fn must not call back
// into the gateway.
func WithActivateListener(fn func(path string)) Option {
	return func(g *Gateway) { g.onActivate = fn }
}

// NewGateway creates a gateway over s with no active project.
func NewGateway(s *store.MapStore, opts ...Option) *Gateway {
	g := &Gateway{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ActivePath returns the path of the active project, or "" if none.
func (g *Gateway) ActivePath() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Info returns the active path together with the history state.
func (g *Gateway) Info() Info {
	g.mu.Lock()
	path := g.active
	g.mu.Unlock()

	h := g.store.Info()
	return Info{FilePath: path, Dirty: h.Dirty, History: h}
}

// Open loads the project at path and makes it active. Unsaved changes to
// the current project are saved first; if that fails nothing changes. The
// store stays locked from the auto-save through the load, so an edit cannot
// slip in between and be discarded unsaved.
func (g *Gateway) Open(ctx context.Context, path string) (*models.CognitiveMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := absPath(path)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var doc *models.CognitiveMap
	err = g.store.Exclusive(func(tx *store.Txn) error {
		if err := g.autoSaveLocked(tx, "open"); err != nil {
			return err
		}
		next, err := ReadFile(path)
		if err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				return err
			}
			return ioError("open", path, err)
		}
		if err := tx.Reset(next); err != nil {
			return err
		}
		doc, _ = tx.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.activateLocked(path)
	g.logger.Info("project opened", "path", pathutil.RedactPath(path), "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	return doc, nil
}

// Save writes the current snapshot to the active project file.
func (g *Gateway) Save(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == "" {
		return "", &models.InvalidStateError{Op: "save", Reason: "no active project"}
	}
	if err := g.saveLocked("save", g.active); err != nil {
		return "", err
	}
	return g.active, nil
}

// SaveAs writes the current snapshot to path and makes it the active project.
// The history is kept.
func (g *Gateway) SaveAs(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := absPath(path)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.saveLocked("save-as", path); err != nil {
		return "", err
	}
	g.activateLocked(path)
	return path, nil
}

// NewProject writes an empty document to path and makes it active with a
// fresh history. Unsaved changes to the current project are saved first.
func (g *Gateway) NewProject(ctx context.Context, path string) (*models.CognitiveMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := absPath(path)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var doc *models.CognitiveMap
	err = g.store.Exclusive(func(tx *store.Txn) error {
		if err := g.autoSaveLocked(tx, "new"); err != nil {
			return err
		}
		empty := models.NewCognitiveMap()
		if err := g.writeLocked("new", path, empty); err != nil {
			return err
		}
		if err := tx.Reset(empty); err != nil {
			return err
		}
		doc, _ = tx.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.activateLocked(path)
	g.logger.Info("project created", "path", pathutil.RedactPath(path))
	return doc, nil
}

// Bootstrap binds the process to path at startup: an existing file is
// opened, a missing one becomes an empty project written on the first save.
func (g *Gateway) Bootstrap(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	abs, err := absPath(path)
	if err != nil {
		return err
	}
	if exists(abs) {
		_, err := g.Open(ctx, abs)
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Reset(models.NewCognitiveMap()); err != nil {
		return err
	}
	g.active = abs
	g.logger.Info("starting empty project", "path", pathutil.RedactPath(abs))
	return nil
}

// Close saves the active project if it has unsaved changes or has never
// been written. It is a no-op without an active project.
func (g *Gateway) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == "" {
		return nil
	}
	if !g.store.Dirty() && exists(g.active) {
		return nil
	}
	return g.saveLocked("close", g.active)
}

func (g *Gateway) activateLocked(path string) {
	g.active = path
	if g.onActivate != nil {
		g.onActivate(path)
	}
}

// autoSaveLocked writes unsaved work to the active file. Caller holds g.mu
// and is inside tx.
func (g *Gateway) autoSaveLocked(tx *store.Txn, op string) error {
	if g.active == "" || !tx.Dirty() {
		return nil
	}
	g.logger.Debug("auto-saving before switch", "op", op, "path", pathutil.RedactPath(g.active))
	doc, hash := tx.Snapshot()
	if err := g.writeLocked("auto-save", g.active, doc); err != nil {
		return fmt.Errorf("%s aborted: %w", op, err)
	}
	tx.MarkSaved(hash)
	return nil
}

func (g *Gateway) saveLocked(op, path string) error {
	doc, hash := g.store.Snapshot()
	if err := g.writeLocked(op, path, doc); err != nil {
		return err
	}
	g.store.MarkSaved(hash)
	g.logger.Debug("project saved", "path", pathutil.RedactPath(path), "hash", hash)
	return nil
}

func (g *Gateway) writeLocked(op, path string, doc *models.CognitiveMap) error {
	if g.backups != nil && exists(path) {
		if bp, err := g.backups.BackupFile(path); err != nil {
			g.logger.Warn("backup before overwrite failed", "path", pathutil.RedactPath(path), "error", err)
		} else if bp != "" {
			g.logger.Debug("previous project contents backed up", "backup", filepath.Base(bp))
		}
	}
	if err := WriteFile(path, doc); err != nil {
		return ioError(op, path, err)
	}
	return nil
}

func absPath(path string) (string, error) {
	if path == "" {
		return "", &models.ValidationError{Field: "file_path", Issue: "missing", Detail: "file path is required"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &models.ValidationError{Field: "file_path", Issue: "invalid", Detail: err.Error()}
	}
	return abs, nil
}

func ioError(op, path string, err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	return &models.IOError{Op: op, Path: pathutil.RedactPath(path), Err: err}
}

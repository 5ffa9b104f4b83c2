// Package app wires configuration, logging, the map store, the project
// gateway, the scenario registry and the session database into one unit
// shared by every transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nvandessel/cogmap/internal/backup"
	"github.com/nvandessel/cogmap/internal/config"
	"github.com/nvandessel/cogmap/internal/fcm"
	"github.com/nvandessel/cogmap/internal/logging"
	"github.com/nvandessel/cogmap/internal/pathutil"
	"github.com/nvandessel/cogmap/internal/project"
	"github.com/nvandessel/cogmap/internal/scenario"
	"github.com/nvandessel/cogmap/internal/session"
	"github.com/nvandessel/cogmap/internal/store"
)

// App holds the live components of one cogmap process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.MapStore
	Engine    *fcm.Engine
	Project   *project.Gateway
	Scenarios *scenario.Registry

	// Session is nil when the session database could not be opened.
	Session *session.Store

	// Backups is nil when backups are disabled.
	Backups *backup.Manager

	runLog *logging.RunLogger
}

// New builds the components from cfg without touching any project file.
// A nil logger means slog.Default().
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	if stateDir, err := config.StateDir(); err == nil {
		a.runLog = logging.NewRunLogger(stateDir, cfg.Logging.Level)
	}

	a.Store = store.New(
		store.WithHistoryLimit(cfg.History.Limit),
		store.WithMaxIterationsCeiling(cfg.Engine.MaxIterationsCeiling),
		store.WithLogger(logger.With("component", "store")),
	)
	a.Engine = fcm.NewEngine(fcm.Config{
		MaxIterationsCeiling:        cfg.Engine.MaxIterationsCeiling,
		DefaultConvergenceThreshold: cfg.Engine.DefaultConvergenceThreshold,
	})
	a.Scenarios = scenario.NewRegistry(a.Store, a.Engine,
		scenario.WithLogger(logger.With("component", "scenario")),
		scenario.WithRunLogger(a.runLog),
	)

	if cfg.Backup.Enabled {
		mgr, err := newBackupManager(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Backups = mgr
	}

	dbPath, err := cfg.SessionDBPath()
	if err == nil {
		a.Session, err = session.Open(ctx, dbPath)
	}
	if err != nil {
		logger.Warn("session database unavailable, recent projects disabled", "error", err)
		a.Session = nil
	}

	opts := []project.Option{
		project.WithLogger(logger.With("component", "project")),
		project.WithActivateListener(a.recordOpened),
	}
	if a.Backups != nil {
		opts = append(opts, project.WithBackups(a.Backups))
	}
	a.Project = project.NewGateway(a.Store, opts...)

	return a, nil
}

// Open builds the components and binds the process to a project: the last
// opened file if it still exists, otherwise the configured default project.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a, err := New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	path, err := a.StartupProject(ctx)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	if err := a.Project.Bootstrap(ctx, path); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return a, nil
}

// StartupProject returns the project path a fresh process should bind to.
func (a *App) StartupProject(ctx context.Context) (string, error) {
	if a.Session != nil {
		last, err := a.Session.LastOpened(ctx)
		if err != nil {
			a.Logger.Warn("reading last opened project", "error", err)
		} else if last != "" {
			if _, err := os.Stat(last); err == nil {
				a.Logger.Info("resuming last opened project", "path", pathutil.RedactPath(last))
				return last, nil
			}
			a.Logger.Warn("last opened project not found, using default", "path", pathutil.RedactPath(last))
		}
	}

	path, err := a.Config.DefaultProjectPath()
	if err != nil {
		return "", fmt.Errorf("resolving default project: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating projects directory: %w", err)
	}
	return path, nil
}

// Close saves the active project, records it as last opened and releases
// the session database and run log. Every step runs; errors are joined.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Project.Close(ctx); err != nil {
		a.Logger.Error("saving project on shutdown", "error", err)
		errs = append(errs, err)
	}
	if path := a.Project.ActivePath(); path != "" && a.Session != nil {
		if _, err := os.Stat(path); err == nil {
			if err := a.Session.RecordOpened(ctx, path); err != nil {
				errs = append(errs, fmt.Errorf("recording last opened project: %w", err))
			}
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	a.runLog.Close()
	if a.Session == nil {
		return nil
	}
	err := a.Session.Close()
	a.Session = nil
	return err
}

func (a *App) recordOpened(path string) {
	if a.Session == nil {
		return
	}
	if err := a.Session.RecordOpened(context.Background(), path); err != nil {
		a.Logger.Warn("recording recent project", "error", err)
	}
}

func newBackupManager(cfg *config.Config, logger *slog.Logger) (*backup.Manager, error) {
	dir, err := cfg.BackupDir()
	if err != nil {
		return nil, fmt.Errorf("resolving backup directory: %w", err)
	}
	retention, err := cfg.Backup.Retention()
	if err != nil {
		return nil, err
	}
	return backup.NewManager(dir,
		backup.WithRetention(retention),
		backup.WithCompression(cfg.Backup.Compression),
		backup.WithLogger(logger.With("component", "backup")),
	), nil
}

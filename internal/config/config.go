// Package config provides unified configuration loading for cogmap.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cogmap/internal/backup"
	"github.com/nvandessel/cogmap/internal/pathutil"
	"github.com/nvandessel/cogmap/internal/store"
)

// DefaultProjectFile is the project opened when no last-opened project is known.
const DefaultProjectFile = "default_map.json"

// Config contains all cogmap configuration settings.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Projects ProjectsConfig `json:"projects" yaml:"projects"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Backup   BackupConfig   `json:"backup" yaml:"backup"`
	Session  SessionConfig  `json:"session" yaml:"session"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// CORSAllowedOrigin is echoed in Access-Control-Allow-Origin. "*" allows any.
	CORSAllowedOrigin string `json:"cors_allowed_origin" yaml:"cors_allowed_origin"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProjectsConfig locates project files.
type ProjectsConfig struct {
	// Dir holds project files. Empty means the platform default
	// ($XDG_DATA_HOME/CognitiveMaps or ~/.local/share/CognitiveMaps).
	// Supports ${VAR} syntax.
	Dir string `json:"dir" yaml:"dir"`

	// DefaultFile is opened inside Dir when there is no last-opened project.
	DefaultFile string `json:"default_file" yaml:"default_file"`
}

// HistoryConfig configures undo/redo.
type HistoryConfig struct {
	// Limit caps the snapshots kept, the current one included, so N allows
	// N-1 undo steps. 0 means unbounded.
	Limit int `json:"limit" yaml:"limit"`
}

// EngineConfig configures the scenario engine.
type EngineConfig struct {
	// MaxIterationsCeiling rejects scenarios asking for more iterations.
	MaxIterationsCeiling int `json:"max_iterations_ceiling" yaml:"max_iterations_ceiling"`

	// DefaultConvergenceThreshold decides the converged flag of fixed-mode
	// runs that set no threshold.
	DefaultConvergenceThreshold float64 `json:"default_convergence_threshold" yaml:"default_convergence_threshold"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the scenario run log (runs.jsonl in the state dir).
	// "trace" additionally records full iteration histories.
	Level string `json:"level" yaml:"level"`

	// File receives a JSON copy of every log record when set.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// BackupConfig configures the copies taken before project files are overwritten.
type BackupConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Dir         string `json:"dir,omitempty" yaml:"dir,omitempty"` // empty means ~/.cogmap/backups
	Compression bool   `json:"compression" yaml:"compression"`
	MaxCount    int    `json:"max_count" yaml:"max_count"`

	// MaxAge accepts Go durations plus "d" and "w" suffixes, e.g. "30d".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxTotalSize accepts B, KB, MB and GB suffixes, e.g. "100MB".
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"`
}

// Retention converts the configured limits. An unset limit stays zero.
func (b BackupConfig) Retention() (backup.Retention, error) {
	r := backup.Retention{MaxCount: b.MaxCount}
	var err error
	if b.MaxAge != "" {
		if r.MaxAge, err = backup.ParseDuration(b.MaxAge); err != nil {
			return backup.Retention{}, fmt.Errorf("backup.max_age: %w", err)
		}
	}
	if b.MaxTotalSize != "" {
		if r.MaxTotalBytes, err = backup.ParseSize(b.MaxTotalSize); err != nil {
			return backup.Retention{}, fmt.Errorf("backup.max_total_size: %w", err)
		}
	}
	return r, nil
}

// SessionConfig locates the session database.
type SessionConfig struct {
	// DBPath is the SQLite file. Empty means ~/.cogmap/session.db.
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8001,
			CORSAllowedOrigin: "*",
		},
		Projects: ProjectsConfig{
			DefaultFile: DefaultProjectFile,
		},
		History: HistoryConfig{
			Limit: store.DefaultHistoryLimit,
		},
		Engine: EngineConfig{
			MaxIterationsCeiling:        10000,
			DefaultConvergenceThreshold: 1e-4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Backup: BackupConfig{
			Enabled:     true,
			Compression: true,
			MaxCount:    20,
			MaxAge:      "30d",
		},
	}
}

// StateDir returns ~/.cogmap, home of the config file, backups and session database.
func StateDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cogmap"), nil
}

// DefaultPath returns ~/.cogmap/config.yaml.
func DefaultPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from path, or from the default location when
// path is empty, then applies environment variables.
// Order: defaults -> config file -> environment variables.
// A missing default config file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Projects.Dir = expandEnvVars(config.Projects.Dir)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)
	config.Session.DBPath = expandEnvVars(config.Session.DBPath)
	config.Logging.File = expandEnvVars(config.Logging.File)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must be non-negative, got %d", c.History.Limit)
	}
	if c.Engine.MaxIterationsCeiling < 1 {
		return fmt.Errorf("engine.max_iterations_ceiling must be positive, got %d", c.Engine.MaxIterationsCeiling)
	}
	if c.Engine.DefaultConvergenceThreshold <= 0 {
		return fmt.Errorf("engine.default_convergence_threshold must be positive, got %g", c.Engine.DefaultConvergenceThreshold)
	}
	if c.Projects.DefaultFile == "" || strings.ContainsAny(c.Projects.DefaultFile, `/\`) {
		return fmt.Errorf("projects.default_file must be a bare file name, got %q", c.Projects.DefaultFile)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Backup.MaxCount < 0 {
		return fmt.Errorf("backup.max_count must be non-negative, got %d", c.Backup.MaxCount)
	}
	if _, err := c.Backup.Retention(); err != nil {
		return err
	}

	return nil
}

// ProjectsDir resolves the projects directory.
func (c *Config) ProjectsDir() (string, error) {
	if c.Projects.Dir != "" {
		return filepath.Abs(c.Projects.Dir)
	}
	return pathutil.DefaultProjectsDir()
}

// DefaultProjectPath is the file opened when no last-opened project exists.
func (c *Config) DefaultProjectPath() (string, error) {
	dir, err := c.ProjectsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Projects.DefaultFile), nil
}

// BackupDir resolves the backup directory.
func (c *Config) BackupDir() (string, error) {
	if c.Backup.Dir != "" {
		return filepath.Abs(c.Backup.Dir)
	}
	return backup.DefaultBackupDir()
}

// SessionDBPath resolves the session database path.
func (c *Config) SessionDBPath() (string, error) {
	if c.Session.DBPath != "" {
		return filepath.Abs(c.Session.DBPath)
	}
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.db"), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BACKEND_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("BACKEND_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.Port = n
		}
	}

	if v := os.Getenv("COGMAP_PROJECTS_DIR"); v != "" {
		config.Projects.Dir = v
	}

	if v := os.Getenv("COGMAP_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.History.Limit = n
		}
	}

	if v := os.Getenv("COGMAP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("COGMAP_LOG_FILE"); v != "" {
		config.Logging.File = v
	}

	if v := os.Getenv("COGMAP_BACKUP_ENABLED"); v != "" {
		config.Backup.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("SESSION_FILE_PATH"); v != "" {
		config.Session.DBPath = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

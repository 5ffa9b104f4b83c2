package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cogmap/internal/pathutil"
	"github.com/nvandessel/cogmap/internal/project"
	"github.com/nvandessel/cogmap/internal/ratelimit"
	"github.com/nvandessel/cogmap/internal/scenario"
	"github.com/nvandessel/cogmap/internal/store"
)

// Server wraps the MCP SDK server and exposes the cognitive map operations
// as tools.
type Server struct {
	server       *sdk.Server
	store        *store.MapStore
	project      *project.Gateway
	scenarios    *scenario.Registry
	projectsDir  string
	allowedDirs  []string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "cogmap")
	Version string // Server version

	Store     *store.MapStore
	Project   *project.Gateway
	Scenarios *scenario.Registry

	// ProjectsDir is the only directory tools may open or write files in.
	ProjectsDir string

	// AuditDir receives audit.jsonl. Empty disables the audit log.
	AuditDir string

	// ToolRates overrides ratelimit.DefaultToolRates when non-nil.
	ToolRates map[string]ratelimit.Rate

	Logger *slog.Logger
}

// NewServer creates a new MCP server with cogmap tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Store == nil || cfg.Project == nil || cfg.Scenarios == nil {
		return nil, errors.New("mcp server requires a store, project gateway and scenario registry")
	}
	allowed := pathutil.AllowedProjectDirs(cfg.ProjectsDir)
	if len(allowed) == 0 {
		return nil, errors.New("mcp server requires a projects directory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rates := cfg.ToolRates
	if rates == nil {
		rates = ratelimit.DefaultToolRates
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		Instructions: "Edit and simulate a fuzzy cognitive map. Changes are undoable; call cogmap_save to persist.",
	})
	mcpServer.AddReceivingMiddleware(LoggingMiddleware(logger))

	s := &Server{
		server:       mcpServer,
		store:        cfg.Store,
		project:      cfg.Project,
		scenarios:    cfg.Scenarios,
		projectsDir:  allowed[0],
		allowedDirs:  allowed,
		toolLimiters: ratelimit.NewToolLimiters(rates),
		logger:       logger,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir, logger)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &sdk.StdioTransport{})
}

// RunTransport serves one session over t until the client disconnects or
// ctx is cancelled. Signal handling is left to the caller.
func (s *Server) RunTransport(ctx context.Context, t sdk.Transport) error {
	err := s.server.Run(ctx, t)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// Close releases the audit log. The map components belong to the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

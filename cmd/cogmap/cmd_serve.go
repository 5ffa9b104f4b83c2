package main

import (
	"context"
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogmap/internal/app"
	"github.com/nvandessel/cogmap/internal/config"
	"github.com/nvandessel/cogmap/internal/httpapi"
	"github.com/nvandessel/cogmap/internal/mcp"
	"github.com/nvandessel/cogmap/internal/pathutil"
	"github.com/nvandessel/cogmap/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the cognitive map HTTP API (` + httpapi.APIPrefix + `) and the /events websocket.

On startup the last opened project is loaded, or the default project in
the projects directory. On shutdown unsaved changes are saved.

Examples:
  cogmap serve                 # listen on 127.0.0.1:8001
  cogmap serve --port 9000
  cogmap serve --open          # also open the address in a browser`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			openBrowser, _ := cmd.Flags().GetBool("open")

			logger, cleanup := setupLogger(cfg)
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeApp(a)

			opts := []httpapi.Option{
				httpapi.WithLogger(logger.With("component", "http")),
				httpapi.WithCORSOrigin(cfg.Server.CORSAllowedOrigin),
			}
			if openBrowser {
				opts = append(opts, httpapi.WithListenHook(func(addr string) {
					if err := visualization.OpenBrowser("http://" + addr + "/"); err != nil {
						logger.Warn("could not open browser", "error", err)
					}
				}))
			}
			srv := httpapi.New(a.Store, a.Project, a.Scenarios, opts...)

			logger.Info("serving project", "path", pathutil.RedactPath(a.Project.ActivePath()))
			return srv.ListenAndServe(ctx, cfg.Server.Addr())
		},
	}

	cmd.Flags().String("host", "", "Listen host (default from config, 127.0.0.1)")
	cmd.Flags().Int("port", 0, "Listen port (default from config, 8001)")
	cmd.Flags().Bool("open", false, "Open the server address in the default browser")
	return cmd
}

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Expose the cognitive map operations as MCP tools over stdio.

Tools may only open and write project files inside the projects directory.
Every tool call is recorded in ~/.cogmap/audit.jsonl without map content.

Example MCP client configuration:
  {"mcpServers": {"cogmap": {"command": "cogmap", "args": ["mcp-server"]}}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, cleanup := setupLogger(cfg)
			defer cleanup()

			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeApp(a)

			projectsDir, err := cfg.ProjectsDir()
			if err != nil {
				return fmt.Errorf("resolving projects directory: %w", err)
			}
			auditDir, err := config.StateDir()
			if err != nil {
				logger.Warn("audit log disabled", "error", err)
				auditDir = ""
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:        "cogmap",
				Version:     version,
				Store:       a.Store,
				Project:     a.Project,
				Scenarios:   a.Scenarios,
				ProjectsDir: projectsDir,
				AuditDir:    auditDir,
				Logger:      logger.With("component", "mcp"),
			})
			if err != nil {
				return fmt.Errorf("creating mcp server: %w", err)
			}
			defer srv.Close()

			return srv.Run(ctx)
		},
	}
}

// closeApp saves and releases a with a fresh context: the command context
// is usually cancelled by the time the server returns.
func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		a.Logger.Error("shutdown", "error", err)
	}
}

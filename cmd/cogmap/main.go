package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogmap/internal/config"
	"github.com/nvandessel/cogmap/internal/logging"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cogmap",
		Short: "Fuzzy cognitive map editor and simulator",
		Long: `cogmap edits causal concept maps and runs what-if scenarios on them
with fuzzy cognitive map dynamics.

Run 'cogmap serve' for the HTTP API used by the editor, or
'cogmap mcp-server' to expose the same operations to MCP clients.
The file commands (validate, simulate, matrix, metrics, graph, export)
work on a project file directly.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.cogmap/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newValidateCmd(),
		newSimulateCmd(),
		newMatrixCmd(),
		newMetricsCmd(),
		newGraphCmd(),
		newExportCmd(),
		newBackupCmd(),
		newConfigCmd(),
		newRecentCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cogmap version %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadConfig reads --config (or the default location) and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger builds the process logger from cfg. Logs always go to stderr
// so stdout stays free for command output and the MCP stdio transport.
func setupLogger(cfg *config.Config) (*slog.Logger, func() error) {
	logger, cleanup := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	slog.SetDefault(logger)
	return logger, cleanup
}

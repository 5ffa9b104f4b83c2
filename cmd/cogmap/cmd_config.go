package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cogmap/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect cogmap configuration",
		Long: `Show the effective configuration: defaults, then the config file, then
environment variables (BACKEND_HOST, BACKEND_PORT, COGMAP_PROJECTS_DIR, ...).

Configuration is stored in ~/.cogmap/config.yaml unless --config is given.

Examples:
  cogmap config show
  cogmap config show --json
  cogmap config path`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file and resolved data locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			file, _ := cmd.Flags().GetString("config")
			if file == "" {
				if file, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			paths := []struct{ key, label string }{
				{"config", "Config file"},
				{"projects", "Projects"},
				{"backups", "Backups"},
				{"session", "Session DB"},
			}
			values := map[string]string{"config": file}
			if values["projects"], err = cfg.ProjectsDir(); err != nil {
				return err
			}
			if values["backups"], err = cfg.BackupDir(); err != nil {
				return err
			}
			if values["session"], err = cfg.SessionDBPath(); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), values)
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", p.label+":", values[p.key])
			}
			return nil
		},
	}
}

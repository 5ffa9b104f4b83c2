package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogmap/internal/backup"
	"github.com/nvandessel/cogmap/internal/pathutil"
	"github.com/nvandessel/cogmap/internal/project"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage project file backups",
		Long: `A backup is taken automatically each time a project file is about to be
overwritten. Backups live in ~/.cogmap/backups (see backup.dir) and are
pruned according to backup.max_count, backup.max_age and backup.max_total_size.

Examples:
  cogmap backup create ~/maps/river.json
  cogmap backup list
  cogmap backup verify ~/.cogmap/backups/cogmap-backup-20260101-120000.000000-river.json.gz
  cogmap backup restore <backup> --to ~/maps/river-restored.json`,
	}
	cmd.AddCommand(
		newBackupCreateCmd(),
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
	)
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <project-file>",
		Short: "Back up a project file now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, cleanup := setupLogger(cfg)
			defer cleanup()
			if noCompress, _ := cmd.Flags().GetBool("no-compress"); noCompress {
				cfg.Backup.Compression = false
			}

			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving %s: %w", args[0], err)
			}
			if _, err := os.Stat(source); err != nil {
				return fmt.Errorf("project file: %w", err)
			}

			mgr, err := newBackupManager(cfg, logger)
			if err != nil {
				return err
			}
			path, err := mgr.BackupFile(source)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			h, err := backup.ReadHeader(path)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"path": path, "header": h})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "  Nodes: %d, Edges: %d, Scenarios: %d\n", h.NodeCount, h.EdgeCount, h.ScenarioCount)
			return nil
		},
	}
	cmd.Flags().Bool("no-compress", false, "Store the payload without gzip compression")
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := cfg.BackupDir()
			if err != nil {
				return fmt.Errorf("resolving backup directory: %w", err)
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("listing backups: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				if backups == nil {
					backups = []backup.Info{}
				}
				return writeJSON(out, map[string]any{"dir": dir, "backups": backups, "count": len(backups)})
			}
			if len(backups) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", dir)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tNODES\tSIZE\tSOURCE\tFILE")
			for _, b := range backups {
				nodes := "?"
				if b.Valid {
					nodes = fmt.Sprint(b.NodeCount)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					nodes,
					formatBytes(b.Size),
					pathutil.RedactPath(b.Source),
					filepath.Base(b.Path))
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <backup-file>",
		Short: "Check a backup's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			verr := backup.VerifyChecksum(path)

			if jsonOutput(cmd) {
				result := map[string]any{"path": path, "valid": verr == nil}
				if verr != nil {
					result["error"] = verr.Error()
				}
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else if verr == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", filepath.Base(path))
			}
			if verr != nil {
				return fmt.Errorf("verification failed: %w", verr)
			}
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Write a backup back out as a project file",
		Long: `Decode a backup and write it as a project file. The target defaults to
the file the backup was taken from. An existing target is only
overwritten with --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			force, _ := cmd.Flags().GetBool("force")

			doc, h, err := backup.Restore(args[0])
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			if to == "" {
				to = h.Source
			}
			if to == "" {
				return fmt.Errorf("backup records no source file, use --to")
			}
			if _, err := os.Stat(to); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", to)
			}
			if err := project.WriteFile(to, doc); err != nil {
				return fmt.Errorf("writing %s: %w", to, err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":      to,
					"nodes":     len(doc.Nodes),
					"edges":     len(doc.Edges),
					"scenarios": len(doc.FCM.Scenarios),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d nodes, %d edges, %d scenarios to %s\n",
				len(doc.Nodes), len(doc.Edges), len(doc.FCM.Scenarios), to)
			return nil
		},
	}
	cmd.Flags().String("to", "", "Target project file (default: the backup's source)")
	cmd.Flags().Bool("force", false, "Overwrite an existing target")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

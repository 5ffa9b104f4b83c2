package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogmap/internal/session"
)

func newRecentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently opened projects",
		Long: `List the projects recorded in the session database, most recent first.
The first entry is the project 'cogmap serve' resumes on startup.

Examples:
  cogmap recent
  cogmap recent --forget ~/maps/old.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dbPath, err := cfg.SessionDBPath()
			if err != nil {
				return fmt.Errorf("resolving session database: %w", err)
			}
			ctx := cmd.Context()
			db, err := session.Open(ctx, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if forget, _ := cmd.Flags().GetString("forget"); forget != "" {
				abs, err := filepath.Abs(forget)
				if err != nil {
					return err
				}
				if err := db.ForgetProject(ctx, abs); err != nil {
					return err
				}
				if !jsonOutput(cmd) {
					fmt.Fprintf(out, "Forgot %s\n", abs)
				}
			}

			recent, err := db.RecentProjects(ctx)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				if recent == nil {
					recent = []session.RecentProject{}
				}
				return writeJSON(out, map[string]any{"projects": recent, "count": len(recent)})
			}
			if len(recent) == 0 {
				fmt.Fprintln(out, "No recent projects")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "OPENED\tPATH")
			for _, p := range recent {
				path := p.Path
				if _, err := os.Stat(p.Path); err != nil {
					path += " (missing)"
				}
				fmt.Fprintf(tw, "%s\t%s\n", p.OpenedAt.Local().Format("2006-01-02 15:04"), path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("forget", "", "Remove a project from the list before printing")
	return cmd
}

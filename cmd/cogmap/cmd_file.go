package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cogmap/internal/backup"
	"github.com/nvandessel/cogmap/internal/config"
	"github.com/nvandessel/cogmap/internal/fcm"
	"github.com/nvandessel/cogmap/internal/matrix"
	"github.com/nvandessel/cogmap/internal/metrics"
	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/project"
	"github.com/nvandessel/cogmap/internal/scenario"
	"github.com/nvandessel/cogmap/internal/store"
	"github.com/nvandessel/cogmap/internal/trajectory"
	"github.com/nvandessel/cogmap/internal/visualization"
)

// fileProject is a project file bound to its own store, without the session
// database or the startup project of a server process.
type fileProject struct {
	store     *store.MapStore
	engine    *fcm.Engine
	scenarios *scenario.Registry
	gateway   *project.Gateway
}

func openFileProject(ctx context.Context, cfg *config.Config, logger *slog.Logger, path string) (*fileProject, error) {
	fp := &fileProject{
		store: store.New(
			store.WithHistoryLimit(cfg.History.Limit),
			store.WithMaxIterationsCeiling(cfg.Engine.MaxIterationsCeiling),
			store.WithLogger(logger),
		),
		engine: newEngine(cfg),
	}
	fp.scenarios = scenario.NewRegistry(fp.store, fp.engine, scenario.WithLogger(logger))

	opts := []project.Option{project.WithLogger(logger)}
	if cfg.Backup.Enabled {
		mgr, err := newBackupManager(cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, project.WithBackups(mgr))
	}
	fp.gateway = project.NewGateway(fp.store, opts...)

	if _, err := fp.gateway.Open(ctx, path); err != nil {
		return nil, err
	}
	return fp, nil
}

func newEngine(cfg *config.Config) *fcm.Engine {
	return fcm.NewEngine(fcm.Config{
		MaxIterationsCeiling:        cfg.Engine.MaxIterationsCeiling,
		DefaultConvergenceThreshold: cfg.Engine.DefaultConvergenceThreshold,
	})
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
		backup.WithLogger(logger),
	), nil
}

// readValidFile loads a project file and rejects it when the graph is invalid.
func readValidFile(cfg *config.Config, path string) (*models.CognitiveMap, error) {
	doc, err := project.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateMap(doc, cfg.Engine.MaxIterationsCeiling); err != nil {
		return nil, err
	}
	return doc, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a project file for errors",
		Long: `Decode a project file and report every structural problem: dangling
edges, duplicate node ids, weights or confidences out of range and
invalid scenario parameters.

Exits non-zero when the file is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			doc, err := project.ReadFile(args[0])
			if err != nil {
				var ve *models.ValidationError
				if jsonOutput(cmd) && errors.As(err, &ve) {
					writeJSON(out, map[string]any{"valid": false, "errors": []models.ValidationError{*ve}})
				}
				return err
			}
			errs := store.CheckMap(doc, cfg.Engine.MaxIterationsCeiling)

			if jsonOutput(cmd) {
				if errs == nil {
					errs = []models.ValidationError{}
				}
				if err := writeJSON(out, map[string]any{
					"valid":     len(errs) == 0,
					"nodes":     len(doc.Nodes),
					"edges":     len(doc.Edges),
					"scenarios": len(doc.FCM.Scenarios),
					"errors":    errs,
				}); err != nil {
					return err
				}
			} else if len(errs) == 0 {
				fmt.Fprintf(out, "OK: %d nodes, %d edges, %d scenarios\n",
					len(doc.Nodes), len(doc.Edges), len(doc.FCM.Scenarios))
			} else {
				fmt.Fprintf(out, "Found %d problem(s):\n", len(errs))
				for _, e := range errs {
					fmt.Fprintf(out, "  - %s\n", e.Error())
				}
			}

			if len(errs) > 0 {
				return fmt.Errorf("%s: %d validation error(s)", args[0], len(errs))
			}
			return nil
		},
	}
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <file>",
		Short: "Run a scenario on a project file",
		Long: `Run a stored scenario, or an ad hoc one built from flags, and print the
final states. The file is left untouched unless --save is given, in which
case the result is stored on the scenario and the file is written back.

Examples:
  cogmap simulate map.json --scenario 3f2a...
  cogmap simulate map.json --init rain=1 --mode fixed --iterations 20
  cogmap simulate map.json --init rain=1 --init dam=-0.5 --mode auto --threshold 0.001
  cogmap simulate map.json --init rain=1 --name "heavy rain" --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, cleanup := setupLogger(cfg)
			defer cleanup()
			ctx := cmd.Context()

			scenarioID, _ := cmd.Flags().GetString("scenario")
			save, _ := cmd.Flags().GetBool("save")

			var params models.ScenarioParams
			if scenarioID == "" {
				params, err = paramsFromFlags(cmd)
				if err != nil {
					return err
				}
			}

			var (
				result *models.ScenarioResult
				name   string
			)
			if save {
				fp, err := openFileProject(ctx, cfg, logger, args[0])
				if err != nil {
					return err
				}
				if scenarioID == "" {
					created, err := fp.scenarios.Create(params)
					if err != nil {
						return err
					}
					scenarioID = created.ID
				}
				ran, err := fp.scenarios.Run(ctx, scenarioID)
				if err != nil {
					return err
				}
				if _, err := fp.gateway.Save(ctx); err != nil {
					return err
				}
				result, name = ran.Result, ran.Params.Name
			} else {
				doc, err := readValidFile(cfg, args[0])
				if err != nil {
					return err
				}
				if scenarioID != "" {
					i := doc.FindScenario(scenarioID)
					if i < 0 {
						return &models.NotFoundError{Resource: "scenario", ID: scenarioID}
					}
					params = doc.FCM.Scenarios[i].Params
				}
				engine := newEngine(cfg)
				if err := engine.Validate(doc, params); err != nil {
					return err
				}
				result, err = engine.Run(ctx, doc, params)
				if err != nil {
					return err
				}
				name = params.Name
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, map[string]any{
					"scenario_id": scenarioID,
					"result":      result,
					"saved":       save,
				})
			}
			printResult(out, name, result)
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "Run the stored scenario with this id")
	cmd.Flags().StringArray("init", nil, "Initial state as node=value (repeatable)")
	cmd.Flags().String("name", "cli", "Scenario name (with --init)")
	cmd.Flags().String("mode", string(models.IterationFixed), "Iteration mode: fixed or auto")
	cmd.Flags().Int("iterations", 20, "Maximum number of iterations")
	cmd.Flags().Float64("threshold", 0, "Convergence threshold (required in auto mode)")
	cmd.Flags().String("activation", "", "Override activation: tanh, sigmoid or identity")
	cmd.Flags().Bool("self-feedback", false, "Add each node's previous state to its own input")
	cmd.Flags().Bool("use-confidence", false, "Scale edge weights by their confidence")
	cmd.Flags().Bool("save", false, "Store the result on the scenario and write the file")
	cmd.MarkFlagsMutuallyExclusive("scenario", "init")
	return cmd
}

// paramsFromFlags builds ad hoc scenario params from the simulate flags.
func paramsFromFlags(cmd *cobra.Command) (models.ScenarioParams, error) {
	inits, _ := cmd.Flags().GetStringArray("init")
	name, _ := cmd.Flags().GetString("name")
	mode, _ := cmd.Flags().GetString("mode")
	iterations, _ := cmd.Flags().GetInt("iterations")
	activation, _ := cmd.Flags().GetString("activation")
	selfFeedback, _ := cmd.Flags().GetBool("self-feedback")
	useConfidence, _ := cmd.Flags().GetBool("use-confidence")

	if len(inits) == 0 {
		return models.ScenarioParams{}, fmt.Errorf("either --scenario or at least one --init is required")
	}
	states, err := parseInitialStates(inits)
	if err != nil {
		return models.ScenarioParams{}, err
	}

	params := models.ScenarioParams{
		Name:           name,
		ActivationType: models.ActivationType(activation),
		UseConfidence:  useConfidence,
		SelfFeedback:   selfFeedback,
		IterationMode:  models.IterationMode(mode),
		MaxIterations:  iterations,
		InitialStates:  states,
	}
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		params.ConvergenceThreshold = models.Float(threshold)
	}
	return params, nil
}

func parseInitialStates(pairs []string) (map[string]float64, error) {
	states := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		id, raw, ok := strings.Cut(pair, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --init %q: expected node=value", pair)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --init %q: %w", pair, err)
		}
		states[id] = v
	}
	return states, nil
}

func printResult(w io.Writer, name string, r *models.ScenarioResult) {
	status := "did not converge"
	if r.Converged {
		status = "converged"
	}
	fmt.Fprintf(w, "Scenario %q %s after %d iteration(s)\n\n", name, status, r.IterationsCount)

	ids := make([]string, 0, len(r.FinalStates))
	for id := range r.FinalStates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tSTATE")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%.4f\n", id, r.FinalStates[id])
	}
	tw.Flush()
}

func newMatrixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matrix <file>",
		Short: "Print the adjacency matrix of a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			doc, err := readValidFile(cfg, args[0])
			if err != nil {
				return err
			}
			view := matrix.Build(doc)

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, view)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprint(tw, "\t")
			for _, id := range view.NodesOrder {
				fmt.Fprintf(tw, "%s\t", id)
			}
			fmt.Fprintln(tw)
			for i, row := range view.Matrix {
				fmt.Fprintf(tw, "%s\t", view.NodesOrder[i])
				for _, w := range row {
					if w == nil {
						fmt.Fprint(tw, ".\t")
					} else {
						fmt.Fprintf(tw, "%.2f\t", *w)
					}
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
}

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <file>",
		Short: "Print node degrees, centrality and roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			doc, err := readValidFile(cfg, args[0])
			if err != nil {
				return err
			}
			report := metrics.Compute(doc)

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, report)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tIN\tOUT\tCENTRALITY\tPAGERANK\tTYPE")
			for _, m := range report.Metrics {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.4f\t%s\n",
					m.NodeID, m.Indegree, m.Outdegree, m.Centrality, m.PageRank, m.Type)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			s := report.Statistics
			fmt.Fprintf(out, "\n%d driver(s), %d receiver(s), %d mediator(s), %d isolated\n",
				s.Drivers, s.Receivers, s.Mediators, s.Isolated)
			return nil
		},
	}
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <file>",
		Short: "Render a project file as a graph",
		Long: `Render the concept graph as Graphviz DOT (default) or JSON.

Examples:
  cogmap graph map.json | dot -Tsvg > map.svg
  cogmap graph map.json --format json -o graph.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			doc, err := readValidFile(cfg, args[0])
			if err != nil {
				return err
			}
			data, err := visualization.Render(doc, visualization.Format(format))
			if err != nil {
				return err
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().String("format", string(visualization.FormatDOT), "Output format: dot or json")
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a scenario trajectory as an Arrow IPC file",
		Long: `Write the per-iteration states of a scenario run as an Arrow IPC file
with one "iteration" column and one column per node.

The stored result is exported. With --run the scenario is simulated first
and the file is left untouched.

Examples:
  cogmap export map.json --scenario 3f2a... -o run.arrow
  cogmap export map.json --scenario 3f2a... --run -o run.arrow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			scenarioID, _ := cmd.Flags().GetString("scenario")
			output, _ := cmd.Flags().GetString("output")
			rerun, _ := cmd.Flags().GetBool("run")

			doc, err := readValidFile(cfg, args[0])
			if err != nil {
				return err
			}
			i := doc.FindScenario(scenarioID)
			if i < 0 {
				return &models.NotFoundError{Resource: "scenario", ID: scenarioID}
			}
			sc := doc.FCM.Scenarios[i]

			if rerun {
				engine := newEngine(cfg)
				if err := engine.Validate(doc, sc.Params); err != nil {
					return err
				}
				sc.Result, err = engine.Run(cmd.Context(), doc, sc.Params)
				if err != nil {
					return err
				}
			}

			t, err := trajectory.FromScenario(doc, sc)
			if err != nil {
				return err
			}
			if err := trajectory.WriteFile(output, t); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":       output,
					"scenario":   sc.ID,
					"nodes":      len(t.NodeIDs),
					"iterations": len(t.States),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d row(s) x %d node(s) to %s\n", len(t.States), len(t.NodeIDs), output)
			return nil
		},
	}
	cmd.Flags().String("scenario", "", "Scenario id (required)")
	cmd.Flags().StringP("output", "o", "", "Arrow IPC output file (required)")
	cmd.Flags().Bool("run", false, "Simulate the scenario before exporting")
	cmd.MarkFlagRequired("scenario")
	cmd.MarkFlagRequired("output")
	return cmd
}

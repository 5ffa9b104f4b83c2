package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cogmap/internal/matrix"
	"github.com/nvandessel/cogmap/internal/metrics"
	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/pathutil"
	"github.com/nvandessel/cogmap/internal/ratelimit"
	"github.com/nvandessel/cogmap/internal/sanitize"
)

// CurrentMapURI is the resource holding the active document as JSON.
const CurrentMapURI = "cogmap://map/current"

// registerTools registers all cogmap tools with the MCP server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_get_map",
		Description: "Get the current cognitive map (nodes, edges, FCM settings and scenarios) with its undo/redo state",
	}, s.handleGetMap)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_replace_map",
		Description: "Replace the whole cognitive map with a new JSON document. The document is validated first; an identical document is a no-op. Undoable",
	}, s.handleReplaceMap)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_undo",
		Description: "Step back to the previous version of the map",
	}, s.handleUndo)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_redo",
		Description: "Step forward to the next version of the map after an undo",
	}, s.handleRedo)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_history",
		Description: "Show the undo/redo cursor, history length and whether there are unsaved changes",
	}, s.handleHistory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_save",
		Description: "Save the map to the active project file, or to file_path (save as) inside the projects directory",
	}, s.handleSave)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_open",
		Description: "Open a project file from the projects directory. Unsaved changes to the current project are saved first",
	}, s.handleOpen)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_new",
		Description: "Create an empty project file in the projects directory and make it active",
	}, s.handleNew)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_list_scenarios",
		Description: "List the scenarios of the current map with a summary of their last result",
	}, s.handleListScenarios)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_create_scenario",
		Description: "Create a simulation scenario: interventions (initial_states clamped by node id), iteration mode and activation settings",
	}, s.handleCreateScenario)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_update_scenario",
		Description: "Replace the parameters of an existing scenario. Its last result is kept until the next run",
	}, s.handleUpdateScenario)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_delete_scenario",
		Description: "Delete a scenario from the current map",
	}, s.handleDeleteScenario)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_run_scenario",
		Description: "Run a scenario through the fuzzy cognitive map and store its result. Undoable",
	}, s.handleRunScenario)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_matrix",
		Description: "Get the adjacency matrix of the map: rows are sources, columns are targets, both in nodes_order",
	}, s.handleMatrix)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_set_cell",
		Description: "Set, change or delete (omit weight) one edge by matrix indices",
	}, s.handleSetCell)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogmap_metrics",
		Description: "Per-node degree, centrality and role (driver, receiver, mediator, isolated) plus PageRank",
	}, s.handleMetrics)
}

// registerResources registers MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         CurrentMapURI,
		Name:        "cogmap-current-map",
		Description: "The cognitive map currently being edited, as a JSON document.",
		MIMEType:    "application/json",
	}, s.handleCurrentMapResource)
}

func (s *Server) handleCurrentMapResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	data, err := models.EncodeCognitiveMap(s.store.Get())
	if err != nil {
		return nil, err
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{
			URI:      CurrentMapURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) mapOutput(doc *models.CognitiveMap) MapOutput {
	return MapOutput{Map: *doc, History: s.store.Info()}
}

// handleGetMap implements the cogmap_get_map tool.
func (s *Server) handleGetMap(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ MapOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("cogmap_get_map", start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_get_map"); err != nil {
		return nil, MapOutput{}, err
	}
	return nil, s.mapOutput(s.store.Get()), nil
}

// handleReplaceMap implements the cogmap_replace_map tool.
func (s *Server) handleReplaceMap(ctx context.Context, req *sdk.CallToolRequest, args ReplaceMapInput) (_ *sdk.CallToolResult, _ MapOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_replace_map", start, retErr, sanitizeToolParams(map[string]any{
			"document": args.Document,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_replace_map"); err != nil {
		return nil, MapOutput{}, err
	}

	candidate, err := models.DecodeCognitiveMap([]byte(args.Document))
	if err != nil {
		return nil, MapOutput{}, err
	}
	doc, err := s.store.Replace(candidate)
	if err != nil {
		return nil, MapOutput{}, err
	}
	return nil, s.mapOutput(doc), nil
}

// handleUndo implements the cogmap_undo tool.
func (s *Server) handleUndo(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ MapOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("cogmap_undo", start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_undo"); err != nil {
		return nil, MapOutput{}, err
	}
	doc, err := s.store.Undo()
	if err != nil {
		return nil, MapOutput{}, err
	}
	return nil, s.mapOutput(doc), nil
}

// handleRedo implements the cogmap_redo tool.
func (s *Server) handleRedo(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ MapOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("cogmap_redo", start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_redo"); err != nil {
		return nil, MapOutput{}, err
	}
	doc, err := s.store.Redo()
	if err != nil {
		return nil, MapOutput{}, err
	}
	return nil, s.mapOutput(doc), nil
}

// handleHistory implements the cogmap_history tool.
func (s *Server) handleHistory(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ models.HistoryInfo, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("cogmap_history", start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_history"); err != nil {
		return nil, models.HistoryInfo{}, err
	}
	return nil, s.store.Info(), nil
}

// handleSave implements the cogmap_save tool.
func (s *Server) handleSave(ctx context.Context, req *sdk.CallToolRequest, args SaveInput) (_ *sdk.CallToolResult, _ SaveOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_save", start, retErr, sanitizeToolParams(map[string]any{
			"file_path": args.FilePath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_save"); err != nil {
		return nil, SaveOutput{}, err
	}

	var (
		path string
		err  error
	)
	if args.FilePath == "" {
		path, err = s.project.Save(ctx)
	} else {
		if path, err = s.resolvePath(args.FilePath); err != nil {
			return nil, SaveOutput{}, err
		}
		path, err = s.project.SaveAs(ctx, path)
	}
	if err != nil {
		return nil, SaveOutput{}, err
	}
	return nil, SaveOutput{
		FilePath: path,
		Message:  fmt.Sprintf("Saved %s", filepath.Base(path)),
	}, nil
}

// handleOpen implements the cogmap_open tool.
func (s *Server) handleOpen(ctx context.Context, req *sdk.CallToolRequest, args FilePathInput) (_ *sdk.CallToolResult, _ ProjectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_open", start, retErr, sanitizeToolParams(map[string]any{
			"file_path": args.FilePath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_open"); err != nil {
		return nil, ProjectOutput{}, err
	}
	path, err := s.resolvePath(args.FilePath)
	if err != nil {
		return nil, ProjectOutput{}, err
	}
	doc, err := s.project.Open(ctx, path)
	if err != nil {
		return nil, ProjectOutput{}, err
	}
	return nil, ProjectOutput{
		FilePath: path,
		Map:      *doc,
		Message:  fmt.Sprintf("Opened %s: %d nodes, %d edges, %d scenarios", filepath.Base(path), len(doc.Nodes), len(doc.Edges), len(doc.FCM.Scenarios)),
	}, nil
}

// handleNew implements the cogmap_new tool.
func (s *Server) handleNew(ctx context.Context, req *sdk.CallToolRequest, args FilePathInput) (_ *sdk.CallToolResult, _ ProjectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_new", start, retErr, sanitizeToolParams(map[string]any{
			"file_path": args.FilePath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_new"); err != nil {
		return nil, ProjectOutput{}, err
	}
	path, err := s.resolvePath(args.FilePath)
	if err != nil {
		return nil, ProjectOutput{}, err
	}
	doc, err := s.project.NewProject(ctx, path)
	if err != nil {
		return nil, ProjectOutput{}, err
	}
	return nil, ProjectOutput{
		FilePath: path,
		Map:      *doc,
		Message:  fmt.Sprintf("Created %s", filepath.Base(path)),
	}, nil
}

// handleListScenarios implements the cogmap_list_scenarios tool.
func (s *Server) handleListScenarios(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ ListScenariosOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("cogmap_list_scenarios", start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_list_scenarios"); err != nil {
		return nil, ListScenariosOutput{}, err
	}

	list := s.scenarios.List()
	out := ListScenariosOutput{Scenarios: make([]ScenarioSummary, 0, len(list)), Count: len(list)}
	for _, sc := range list {
		sum := ScenarioSummary{
			ID:            sc.ID,
			Name:          sc.Params.Name,
			Description:   sc.Params.Description,
			IterationMode: string(sc.Params.IterationMode),
			MaxIterations: sc.Params.MaxIterations,
			Interventions: len(sc.Params.InitialStates),
			UpdatedAt:     sc.UpdatedAt,
		}
		if sc.Result != nil {
			sum.HasResult = true
			sum.Converged = sc.Result.Converged
			sum.IterationsCount = sc.Result.IterationsCount
		}
		out.Scenarios = append(out.Scenarios, sum)
	}
	return nil, out, nil
}

// handleCreateScenario implements the cogmap_create_scenario tool.
func (s *Server) handleCreateScenario(ctx context.Context, req *sdk.CallToolRequest, args CreateScenarioInput) (_ *sdk.CallToolResult, _ ScenarioOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_create_scenario", start, retErr, sanitizeToolParams(args.Params.auditParams()))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_create_scenario"); err != nil {
		return nil, ScenarioOutput{}, err
	}
	sc, err := s.scenarios.Create(args.Params.toParams())
	if err != nil {
		return nil, ScenarioOutput{}, err
	}
	return nil, ScenarioOutput{
		Scenario: sc,
		Message:  fmt.Sprintf("Created scenario %q (%s)", sc.Params.Name, sc.ID),
	}, nil
}

// handleUpdateScenario implements the cogmap_update_scenario tool.
func (s *Server) handleUpdateScenario(ctx context.Context, req *sdk.CallToolRequest, args UpdateScenarioInput) (_ *sdk.CallToolResult, _ ScenarioOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := args.Params.auditParams()
		params["scenario_id"] = args.ScenarioID
		s.auditTool("cogmap_update_scenario", start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_update_scenario"); err != nil {
		return nil, ScenarioOutput{}, err
	}
	sc, err := s.scenarios.Update(args.ScenarioID, args.Params.toParams())
	if err != nil {
		return nil, ScenarioOutput{}, err
	}
	return nil, ScenarioOutput{
		Scenario: sc,
		Message:  fmt.Sprintf("Updated scenario %q", sc.Params.Name),
	}, nil
}

// handleDeleteScenario implements the cogmap_delete_scenario tool.
func (s *Server) handleDeleteScenario(ctx context.Context, req *sdk.CallToolRequest, args ScenarioIDInput) (_ *sdk.CallToolResult, _ DeleteScenarioOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_delete_scenario", start, retErr, sanitizeToolParams(map[string]any{
			"scenario_id": args.ScenarioID,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_delete_scenario"); err != nil {
		return nil, DeleteScenarioOutput{}, err
	}
	if err := s.scenarios.Delete(args.ScenarioID); err != nil {
		return nil, DeleteScenarioOutput{}, err
	}
	return nil, DeleteScenarioOutput{
		Deleted: true,
		Message: fmt.Sprintf("Deleted scenario %s", args.ScenarioID),
	}, nil
}

// handleRunScenario implements the cogmap_run_scenario tool.
func (s *Server) handleRunScenario(ctx context.Context, req *sdk.CallToolRequest, args RunScenarioInput) (_ *sdk.CallToolResult, _ RunScenarioOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_run_scenario", start, retErr, sanitizeToolParams(map[string]any{
			"scenario_id":     args.ScenarioID,
			"include_history": args.IncludeHistory,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_run_scenario"); err != nil {
		return nil, RunScenarioOutput{}, err
	}
	sc, err := s.scenarios.Run(ctx, args.ScenarioID)
	if err != nil {
		return nil, RunScenarioOutput{}, err
	}

	res := sc.Result
	out := RunScenarioOutput{
		ScenarioID:      sc.ID,
		FinalStates:     res.FinalStates,
		IterationsCount: res.IterationsCount,
		Converged:       res.Converged,
		Timestamp:       res.Timestamp,
	}
	if args.IncludeHistory {
		out.History = res.History
	}
	status := "did not converge"
	if res.Converged {
		status = "converged"
	}
	out.Message = fmt.Sprintf("Scenario %q %s after %d iterations", sc.Params.Name, status, res.IterationsCount)
	return nil, out, nil
}

// handleMatrix implements the cogmap_matrix tool.
func (s *Server) handleMatrix(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ matrix.View, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("cogmap_matrix", start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_matrix"); err != nil {
		return nil, matrix.View{}, err
	}
	return nil, matrix.Build(s.store.Get()), nil
}

// handleSetCell implements the cogmap_set_cell tool.
func (s *Server) handleSetCell(ctx context.Context, req *sdk.CallToolRequest, args SetCellInput) (_ *sdk.CallToolResult, _ SetCellOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cogmap_set_cell", start, retErr, sanitizeToolParams(map[string]any{
			"source_index": args.SourceIndex,
			"target_index": args.TargetIndex,
			"weight":       args.Weight,
			"confidence":   args.Confidence,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_set_cell"); err != nil {
		return nil, SetCellOutput{}, err
	}
	cell := matrix.Cell{
		SourceIndex: args.SourceIndex,
		TargetIndex: args.TargetIndex,
		Weight:      args.Weight,
		Confidence:  args.Confidence,
	}
	doc, err := s.store.Update(func(doc *models.CognitiveMap) error {
		return matrix.SetCell(doc, cell)
	})
	if err != nil {
		return nil, SetCellOutput{}, err
	}
	return nil, SetCellOutput{Matrix: matrix.Build(doc), History: s.store.Info()}, nil
}

// handleMetrics implements the cogmap_metrics tool.
func (s *Server) handleMetrics(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ metrics.Report, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("cogmap_metrics", start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cogmap_metrics"); err != nil {
		return nil, metrics.Report{}, err
	}
	return nil, metrics.Compute(s.store.Get()), nil
}

// resolvePath anchors relative paths in the projects directory and rejects
// anything that resolves outside it.
func (s *Server) resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &models.ValidationError{Field: "file_path", Issue: "missing", Detail: "file_path is required"}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.projectsDir, path)
	}
	abs, err := pathutil.Confine(path, s.allowedDirs)
	if err != nil {
		return "", &models.ValidationError{Field: "file_path", Issue: "invalid", Detail: err.Error()}
	}
	return abs, nil
}

// toParams converts tool input to scenario parameters. Name and
// description are free text from the client and are sanitized here.
func (in ScenarioParamsInput) toParams() models.ScenarioParams {
	initial := make(map[string]float64, len(in.InitialStates))
	for id, v := range in.InitialStates {
		initial[id] = v
	}
	return models.ScenarioParams{
		Name:                 sanitize.Name(in.Name),
		Description:          sanitize.Description(in.Description),
		ActivationType:       models.ActivationType(in.ActivationType),
		UseConfidence:        in.UseConfidence,
		SelfFeedback:         in.SelfFeedback,
		IterationMode:        models.IterationMode(in.IterationMode),
		MaxIterations:        in.MaxIterations,
		ConvergenceThreshold: in.ConvergenceThreshold,
		InitialStates:        initial,
	}
}

func (in ScenarioParamsInput) auditParams() map[string]any {
	params := map[string]any{
		"name":            in.Name,
		"iteration_mode":  in.IterationMode,
		"max_iterations":  in.MaxIterations,
		"use_confidence":  in.UseConfidence,
		"self_feedback":   in.SelfFeedback,
		"initial_states":  len(in.InitialStates),
		"activation_type": in.ActivationType,
	}
	if in.Description != "" {
		params["description"] = in.Description
	}
	return params
}

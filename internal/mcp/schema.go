// Package mcp provides an MCP (Model Context Protocol) server for cogmap.
package mcp

import (
	"time"

	"github.com/nvandessel/cogmap/internal/matrix"
	"github.com/nvandessel/cogmap/internal/models"
)

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// MapOutput is returned by every tool that yields the current document.
type MapOutput struct {
	Map     models.CognitiveMap `json:"map" jsonschema:"The current cognitive map"`
	History models.HistoryInfo  `json:"history" jsonschema:"Undo/redo state after the call"`
}

// ReplaceMapInput defines the input for cogmap_replace_map.
type ReplaceMapInput struct {
	Document string `json:"document" jsonschema:"Complete cognitive map as a JSON document (nodes, edges, fcm)"`
}

// SaveInput defines the input for cogmap_save.
type SaveInput struct {
	FilePath string `json:"file_path,omitempty" jsonschema:"Save under this path instead of the active file. Relative paths resolve inside the projects directory"`
}

// SaveOutput defines the output for cogmap_save.
type SaveOutput struct {
	FilePath string `json:"file_path" jsonschema:"File the project was written to"`
	Message  string `json:"message" jsonschema:"Human-readable result message"`
}

// FilePathInput defines the input for cogmap_open and cogmap_new.
type FilePathInput struct {
	FilePath string `json:"file_path" jsonschema:"Project file. Relative paths resolve inside the projects directory"`
}

// ProjectOutput defines the output for cogmap_open and cogmap_new.
type ProjectOutput struct {
	FilePath string              `json:"file_path" jsonschema:"Active project file"`
	Map      models.CognitiveMap `json:"map" jsonschema:"Loaded cognitive map"`
	Message  string              `json:"message" jsonschema:"Human-readable result message"`
}

// ScenarioSummary is a compact view of a scenario without its trajectory.
type ScenarioSummary struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	IterationMode   string    `json:"iteration_mode"`
	MaxIterations   int       `json:"max_iterations"`
	Interventions   int       `json:"interventions"`
	HasResult       bool      `json:"has_result"`
	Converged       bool      `json:"converged"`
	IterationsCount int       `json:"iterations_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListScenariosOutput defines the output for cogmap_list_scenarios.
type ListScenariosOutput struct {
	Scenarios []ScenarioSummary `json:"scenarios" jsonschema:"Scenarios in document order"`
	Count     int               `json:"count" jsonschema:"Number of scenarios"`
}

// ScenarioParamsInput mirrors the scenario parameters accepted by the
// create and update tools.
type ScenarioParamsInput struct {
	Name                 string             `json:"name" jsonschema:"Scenario name"`
	Description          string             `json:"description,omitempty" jsonschema:"Free-text description"`
	ActivationType       string             `json:"activation_type,omitempty" jsonschema:"Override the map activation: tanh, sigmoid or linear"`
	UseConfidence        bool               `json:"use_confidence,omitempty" jsonschema:"Scale edge weights by their confidence"`
	SelfFeedback         bool               `json:"self_feedback,omitempty" jsonschema:"Add each node's previous state to its own input"`
	IterationMode        string             `json:"iteration_mode" jsonschema:"fixed runs max_iterations steps; auto stops at convergence"`
	MaxIterations        int                `json:"max_iterations" jsonschema:"Iteration cap (at least 1)"`
	ConvergenceThreshold *float64           `json:"convergence_threshold,omitempty" jsonschema:"Required in auto mode. Largest state change counted as converged"`
	InitialStates        map[string]float64 `json:"initial_states,omitempty" jsonschema:"Clamped intervention values keyed by node id"`
}

// CreateScenarioInput defines the input for cogmap_create_scenario.
type CreateScenarioInput struct {
	Params ScenarioParamsInput `json:"params" jsonschema:"Scenario parameters"`
}

// UpdateScenarioInput defines the input for cogmap_update_scenario.
type UpdateScenarioInput struct {
	ScenarioID string              `json:"scenario_id" jsonschema:"ID of the scenario to update"`
	Params     ScenarioParamsInput `json:"params" jsonschema:"Replacement parameters. The last result is kept"`
}

// ScenarioOutput defines the output for the create and update tools.
type ScenarioOutput struct {
	Scenario models.Scenario `json:"scenario" jsonschema:"The stored scenario"`
	Message  string          `json:"message" jsonschema:"Human-readable result message"`
}

// ScenarioIDInput defines the input for cogmap_delete_scenario.
type ScenarioIDInput struct {
	ScenarioID string `json:"scenario_id" jsonschema:"ID of the scenario"`
}

// DeleteScenarioOutput defines the output for cogmap_delete_scenario.
type DeleteScenarioOutput struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// RunScenarioInput defines the input for cogmap_run_scenario.
type RunScenarioInput struct {
	ScenarioID     string `json:"scenario_id" jsonschema:"ID of the scenario to run"`
	IncludeHistory bool   `json:"include_history,omitempty" jsonschema:"Return the per-iteration states as well (default: false)"`
}

// RunScenarioOutput defines the output for cogmap_run_scenario.
type RunScenarioOutput struct {
	ScenarioID      string               `json:"scenario_id"`
	FinalStates     map[string]float64   `json:"final_states" jsonschema:"Node states after the last iteration"`
	IterationsCount int                  `json:"iterations_count"`
	Converged       bool                 `json:"converged"`
	Timestamp       time.Time            `json:"timestamp"`
	History         []map[string]float64 `json:"history,omitempty" jsonschema:"States per iteration, starting with the initial vector"`
	Message         string               `json:"message" jsonschema:"Human-readable result message"`
}

// SetCellInput defines the input for cogmap_set_cell.
type SetCellInput struct {
	SourceIndex int      `json:"source_index" jsonschema:"Row: index of the source node in nodes_order"`
	TargetIndex int      `json:"target_index" jsonschema:"Column: index of the target node in nodes_order"`
	Weight      *float64 `json:"weight,omitempty" jsonschema:"Edge weight in [-1, 1]. Omit to delete the edge"`
	Confidence  *float64 `json:"confidence,omitempty" jsonschema:"Edge confidence in [0, 1]"`
}

// SetCellOutput defines the output for cogmap_set_cell.
type SetCellOutput struct {
	Matrix  matrix.View        `json:"matrix" jsonschema:"Adjacency matrix after the edit"`
	History models.HistoryInfo `json:"history"`
}

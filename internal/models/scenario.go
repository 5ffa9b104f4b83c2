package models

import "time"

// IterationMode controls when a scenario run stops.
type IterationMode string

const (
	// IterationFixed runs exactly MaxIterations steps.
	IterationFixed IterationMode = "fixed"
	// IterationAuto stops at the first step below ConvergenceThreshold.
	IterationAuto IterationMode = "auto"
)

// Valid reports whether m is a known iteration mode.
func (m IterationMode) Valid() bool {
	return m == IterationFixed || m == IterationAuto
}

// ScenarioParams is a reproducible simulation request.
type ScenarioParams struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// ActivationType overrides the document activation when set.
	ActivationType ActivationType `json:"activation_type,omitempty" yaml:"activation_type,omitempty"`

	UseConfidence bool `json:"use_confidence" yaml:"use_confidence"`

	// SelfFeedback adds each node's previous state to its own input
	// (s_j(t) + Σ w_ij s_i(t)). Off means pure neighbor-driven propagation.
	SelfFeedback bool `json:"self_feedback,omitempty" yaml:"self_feedback,omitempty"`

	IterationMode IterationMode `json:"iteration_mode" yaml:"iteration_mode"`
	MaxIterations int           `json:"max_iterations" yaml:"max_iterations"`

	// ConvergenceThreshold is required in auto mode. In fixed mode it only
	// decides the reported Converged flag.
	ConvergenceThreshold *float64 `json:"convergence_threshold,omitempty" yaml:"convergence_threshold,omitempty"`

	// InitialStates is the intervention set. Keyed nodes stay clamped at
	// their value for the whole run.
	InitialStates map[string]float64 `json:"initial_states" yaml:"initial_states"`
}

// ScenarioResult is the outcome of one scenario run.
type ScenarioResult struct {
	FinalStates     map[string]float64 `json:"final_states" yaml:"final_states"`
	IterationsCount int                `json:"iterations_count" yaml:"iterations_count"`
	Converged       bool               `json:"converged" yaml:"converged"`
	Timestamp       time.Time          `json:"timestamp" yaml:"timestamp"`

	// History holds one state map per iteration, starting with the initial vector.
	History []map[string]float64 `json:"history,omitempty" yaml:"history,omitempty"`
}

// Scenario is a named simulation request owned by a document.
type Scenario struct {
	ID        string          `json:"id" yaml:"id"`
	Params    ScenarioParams  `json:"params" yaml:"params"`
	Result    *ScenarioResult `json:"result,omitempty" yaml:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`
}

// HistoryInfo describes the undo/redo cursor for observers.
type HistoryInfo struct {
	CurrentIndex  int    `json:"current_index"`
	HistoryLength int    `json:"history_length"`
	CanUndo       bool   `json:"can_undo"`
	CanRedo       bool   `json:"can_redo"`
	Limit         int    `json:"limit"`
	CurrentHash   string `json:"current_hash"`
	Dirty         bool   `json:"dirty"`
}

package store

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/nvandessel/cogmap/internal/models"
)

// DefaultMaxIterationsCeiling bounds ScenarioParams.MaxIterations when no
// ceiling is configured.
const DefaultMaxIterationsCeiling = 10000

// CheckMap validates a document for consistency.
// Returns every violation found, in document order:
// - Node ids empty or duplicated, unknown preferred_state, non-finite layout
// - Dangling or duplicate edges, weight/confidence out of range
// - Bad state range, lambda or activation type
// - Scenario ids empty or duplicated, malformed scenario params
func CheckMap(m *models.CognitiveMap, ceiling int) []models.ValidationError {
	var errs []models.ValidationError
	add := func(field, issue, format string, args ...any) {
		errs = append(errs, models.ValidationError{
			Field:  field,
			Issue:  issue,
			Detail: fmt.Sprintf(format, args...),
		})
	}

	ids := make(map[string]bool, len(m.Nodes))
	for i, n := range m.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		switch {
		case n.ID == "":
			add(field+".id", "missing", "node id must not be empty")
		case ids[n.ID]:
			add(field+".id", "duplicate", "node id %q appears more than once", n.ID)
		}
		ids[n.ID] = true

		switch n.PreferredState {
		case "", models.PreferIncrease, models.PreferDecrease:
		default:
			add(field+".preferred_state", "invalid", "unknown preferred state %q", n.PreferredState)
		}
		if !finite(n.UI.X) || !finite(n.UI.Y) {
			add(field+".ui", "invalid", "layout coordinates must be finite")
		}
	}

	type pair struct{ source, target string }
	seen := make(map[pair]bool, len(m.Edges))
	for i, e := range m.Edges {
		field := fmt.Sprintf("edges[%d]", i)
		if !ids[e.Source] {
			add(field+".source", "dangling", "edge source %q is not a node", e.Source)
		}
		if !ids[e.Target] {
			add(field+".target", "dangling", "edge target %q is not a node", e.Target)
		}
		p := pair{e.Source, e.Target}
		if seen[p] {
			add(field, "duplicate", "edge %s -> %s appears more than once", e.Source, e.Target)
		}
		seen[p] = true

		if !inRange(e.Weight, -1, 1) {
			add(field+".weight", "out-of-range", "weight %v not in [-1, 1]", e.Weight)
		}
		if e.Confidence != nil && !inRange(*e.Confidence, 0, 1) {
			add(field+".confidence", "out-of-range", "confidence %v not in [0, 1]", *e.Confidence)
		}
	}

	sr := m.FCM.StateRange
	if !finite(sr.Min()) || !finite(sr.Max()) || sr.Min() >= sr.Max() {
		add("fcm.state_range", "invalid", "state range [%v, %v] must have min < max", sr.Min(), sr.Max())
	}
	if !m.FCM.Activation.Type.Valid() {
		add("fcm.activation.type", "invalid", "unknown activation type %q", m.FCM.Activation.Type)
	}
	if !(m.FCM.Activation.Lambda > 0) || math.IsInf(m.FCM.Activation.Lambda, 0) {
		add("fcm.activation.lambda", "out-of-range", "lambda must be > 0, got %v", m.FCM.Activation.Lambda)
	}

	scenarioIDs := make(map[string]bool, len(m.FCM.Scenarios))
	for i, s := range m.FCM.Scenarios {
		field := fmt.Sprintf("fcm.scenarios[%d]", i)
		switch {
		case s.ID == "":
			add(field+".id", "missing", "scenario id must not be empty")
		case scenarioIDs[s.ID]:
			add(field+".id", "duplicate", "scenario id %q appears more than once", s.ID)
		}
		scenarioIDs[s.ID] = true

		for _, ve := range CheckParams(s.Params, ceiling) {
			ve.Field = field + "." + ve.Field
			errs = append(errs, ve)
		}
	}

	return errs
}

// CheckParams validates the structure of scenario params. It does not
// resolve initial-state keys against the graph; see CheckInitialStates.
func CheckParams(p models.ScenarioParams, ceiling int) []models.ValidationError {
	if ceiling <= 0 {
		ceiling = DefaultMaxIterationsCeiling
	}
	var errs []models.ValidationError
	add := func(field, issue, format string, args ...any) {
		errs = append(errs, models.ValidationError{
			Field:  "params." + field,
			Issue:  issue,
			Detail: fmt.Sprintf(format, args...),
		})
	}

	if !p.IterationMode.Valid() {
		add("iteration_mode", "invalid", "iteration mode must be fixed or auto, got %q", p.IterationMode)
	}
	if p.MaxIterations < 1 || p.MaxIterations > ceiling {
		add("max_iterations", "out-of-range", "max_iterations %d not in [1, %d]", p.MaxIterations, ceiling)
	}
	if p.ActivationType != "" && !p.ActivationType.Valid() {
		add("activation_type", "invalid", "unknown activation type %q", p.ActivationType)
	}
	if t := p.ConvergenceThreshold; t != nil && (!(*t > 0) || math.IsInf(*t, 0)) {
		add("convergence_threshold", "out-of-range", "convergence threshold must be > 0, got %v", *t)
	}
	if p.IterationMode == models.IterationAuto && p.ConvergenceThreshold == nil {
		add("convergence_threshold", "missing", "auto mode requires a convergence threshold")
	}
	for _, id := range slices.Sorted(maps.Keys(p.InitialStates)) {
		if !finite(p.InitialStates[id]) {
			add("initial_states."+id, "invalid", "initial state must be finite")
		}
	}

	return errs
}

// CheckInitialStates resolves initial-state keys against the document's
// nodes and checks their values lie within the state range.
func CheckInitialStates(m *models.CognitiveMap, initial map[string]float64) []models.ValidationError {
	var errs []models.ValidationError
	ids := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		ids[n.ID] = true
	}
	sr := m.FCM.StateRange
	// Sorted keys keep the first reported error stable.
	for _, id := range slices.Sorted(maps.Keys(initial)) {
		v := initial[id]
		field := "params.initial_states." + id
		switch {
		case !ids[id]:
			errs = append(errs, models.ValidationError{
				Field: field, Issue: "dangling",
				Detail: fmt.Sprintf("node %q does not exist", id),
			})
		case !finite(v) || !sr.Contains(v):
			errs = append(errs, models.ValidationError{
				Field: field, Issue: "out-of-range",
				Detail: fmt.Sprintf("value %v not in [%v, %v]", v, sr.Min(), sr.Max()),
			})
		}
	}
	return errs
}

// ValidateMap returns the first violation in m as a *models.ValidationError,
// or nil when the document is consistent.
func ValidateMap(m *models.CognitiveMap, ceiling int) error {
	return first(CheckMap(m, ceiling))
}

// ValidateParams is CheckParams reduced to its first violation.
func ValidateParams(p models.ScenarioParams, ceiling int) error {
	return first(CheckParams(p, ceiling))
}

// ValidateInitialStates is CheckInitialStates reduced to its first violation.
func ValidateInitialStates(m *models.CognitiveMap, initial map[string]float64) error {
	return first(CheckInitialStates(m, initial))
}

func first(errs []models.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	e := errs[0]
	return &e
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func inRange(v, lo, hi float64) bool {
	return finite(v) && v >= lo && v <= hi
}

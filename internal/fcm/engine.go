// Package fcm implements the Fuzzy Cognitive Map scenario engine. Node states
// are iterated with a synchronous update rule: every node's next state is
// computed from the previous vector, then the whole vector is swapped.
package fcm

import (
	"context"
	"math"
	"time"

	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/store"
)

// Config holds the engine limits.
type Config struct {
	// MaxIterationsCeiling is the hard upper bound on max_iterations.
	// Requests above it are rejected, never capped. Default: 10000.
	MaxIterationsCeiling int

	// DefaultConvergenceThreshold decides the converged flag of fixed-mode
	// runs that carry no threshold of their own. Default: 1e-4.
	DefaultConvergenceThreshold float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterationsCeiling:        store.DefaultMaxIterationsCeiling,
		DefaultConvergenceThreshold: 1e-4,
	}
}

// Engine runs scenarios against a read-only document.
// The engine is stateless: all mutable state lives in the vectors created
// during each call to Run.
type Engine struct {
	config Config
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new scenario engine.
func NewEngine(config Config, opts ...Option) *Engine {
	if config.MaxIterationsCeiling <= 0 {
		config.MaxIterationsCeiling = store.DefaultMaxIterationsCeiling
	}
	if config.DefaultConvergenceThreshold <= 0 {
		config.DefaultConvergenceThreshold = DefaultConfig().DefaultConvergenceThreshold
	}
	e := &Engine{config: config, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// inbound is one weighted edge into a node, by source index.
type inbound struct {
	source int
	weight float64
}

// Run iterates params over doc and returns the result. doc is not modified.
// ctx is checked between iterations only.
func (e *Engine) Run(ctx context.Context, doc *models.CognitiveMap, params models.ScenarioParams) (*models.ScenarioResult, error) {
	if err := e.Validate(doc, params); err != nil {
		return nil, err
	}

	n := len(doc.Nodes)
	index := doc.NodeIndex()

	// Incoming edges per target, in document edge order so that summation
	// order, and therefore the result, is reproducible.
	in := make([][]inbound, n)
	for _, edge := range doc.Edges {
		j := index[edge.Target]
		in[j] = append(in[j], inbound{source: index[edge.Source], weight: edge.EffectiveWeight(params.UseConfidence)})
	}

	state := make([]float64, n)
	clamped := make([]bool, n)
	for id, v := range params.InitialStates {
		i := index[id]
		state[i] = v
		clamped[i] = true
	}

	actType := params.ActivationType
	if actType == "" {
		actType = doc.FCM.Activation.Type
	}
	squash := newSquasher(actType, doc.FCM.Activation.Lambda, doc.FCM.StateRange)

	threshold := e.config.DefaultConvergenceThreshold
	if params.ConvergenceThreshold != nil {
		threshold = *params.ConvergenceThreshold
	}

	history := make([][]float64, 0, params.MaxIterations+1)
	history = append(history, append([]float64(nil), state...))

	var (
		iterations int
		converged  bool
		lastDelta  = math.Inf(1)
	)
	for iterations < params.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Synchronous update: next is computed entirely from state.
		next := make([]float64, n)
		maxDelta := 0.0
		for j := 0; j < n; j++ {
			if clamped[j] {
				next[j] = state[j]
				continue
			}
			sum := 0.0
			for _, edge := range in[j] {
				sum += edge.weight * state[edge.source]
			}
			if params.SelfFeedback {
				sum += state[j]
			}
			next[j] = squash(sum)
			if d := math.Abs(next[j] - state[j]); d > maxDelta {
				maxDelta = d
			}
		}

		state = next
		history = append(history, append([]float64(nil), state...))
		iterations++
		lastDelta = maxDelta

		if params.IterationMode == models.IterationAuto && maxDelta < threshold {
			converged = true
			break
		}
	}
	if params.IterationMode == models.IterationFixed {
		converged = lastDelta < threshold
	}

	return &models.ScenarioResult{
		FinalStates:     toStates(doc.Nodes, state),
		IterationsCount: iterations,
		Converged:       converged,
		Timestamp:       e.now().UTC(),
		History:         toHistory(doc.Nodes, history),
	}, nil
}

// Validate checks that params can run against doc. Initial-state keys must
// name existing nodes and their values must lie within the state range.
func (e *Engine) Validate(doc *models.CognitiveMap, params models.ScenarioParams) error {
	if len(doc.Nodes) == 0 {
		return &models.ValidationError{
			Field:  "nodes",
			Issue:  "missing",
			Detail: "cannot run a scenario on an empty cognitive map",
		}
	}
	if err := store.ValidateParams(params, e.config.MaxIterationsCeiling); err != nil {
		return err
	}
	return store.ValidateInitialStates(doc, params.InitialStates)
}

func toStates(nodes []models.Node, vec []float64) map[string]float64 {
	out := make(map[string]float64, len(nodes))
	for i, node := range nodes {
		out[node.ID] = vec[i]
	}
	return out
}

func toHistory(nodes []models.Node, vecs [][]float64) []map[string]float64 {
	out := make([]map[string]float64, len(vecs))
	for i, vec := range vecs {
		out[i] = toStates(nodes, vec)
	}
	return out
}

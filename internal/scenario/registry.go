// Package scenario manages the scenarios stored inside the active document.
// Every mutation, including a run, is committed through the map store and is
// therefore undoable.
package scenario

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/cogmap/internal/fcm"
	"github.com/nvandessel/cogmap/internal/logging"
	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/store"
)

// Registry provides CRUD and execution for scenarios.
type Registry struct {
	store  *store.MapStore
	engine *fcm.Engine
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
	runLog *logging.RunLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithRunLogger enables JSONL tracing of runs.
func WithRunLogger(rl *logging.RunLogger) Option {
	return func(r *Registry) { r.runLog = rl }
}

// NewRegistry creates a registry over the given store and engine.
func NewRegistry(s *store.MapStore, engine *fcm.Engine, opts ...Option) *Registry {
	r := &Registry{
		store:  s,
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns every scenario in document order.
func (r *Registry) List() []models.Scenario {
	return r.store.Get().FCM.Scenarios
}

// Get returns the scenario with the given id.
func (r *Registry) Get(id string) (models.Scenario, error) {
	doc := r.store.Get()
	i := doc.FindScenario(id)
	if i < 0 {
		return models.Scenario{}, notFound(id)
	}
	return doc.FCM.Scenarios[i], nil
}

// Create validates params against the current graph and appends a new
// scenario with a fresh id.
func (r *Registry) Create(params models.ScenarioParams) (models.Scenario, error) {
	var created models.Scenario
	_, err := r.store.Update(func(doc *models.CognitiveMap) error {
		if err := r.validate(doc, params); err != nil {
			return err
		}
		ts := r.timestamp()
		created = models.Scenario{
			ID:        r.newID(),
			Params:    models.CloneParams(params),
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		if created.Params.InitialStates == nil {
			created.Params.InitialStates = map[string]float64{}
		}
		doc.FCM.Scenarios = append(doc.FCM.Scenarios, created)
		return nil
	})
	if err != nil {
		return models.Scenario{}, err
	}
	r.logger.Info("scenario created", "id", created.ID, "name", created.Params.Name)
	return models.CloneScenario(created), nil
}

// Update replaces the params of an existing scenario. The last result is kept.
func (r *Registry) Update(id string, params models.ScenarioParams) (models.Scenario, error) {
	var updated models.Scenario
	_, err := r.store.Update(func(doc *models.CognitiveMap) error {
		i := doc.FindScenario(id)
		if i < 0 {
			return notFound(id)
		}
		if err := r.validate(doc, params); err != nil {
			return err
		}
		s := &doc.FCM.Scenarios[i]
		s.Params = models.CloneParams(params)
		if s.Params.InitialStates == nil {
			s.Params.InitialStates = map[string]float64{}
		}
		s.UpdatedAt = r.timestamp()
		updated = models.CloneScenario(*s)
		return nil
	})
	if err != nil {
		return models.Scenario{}, err
	}
	r.logger.Info("scenario updated", "id", id)
	return updated, nil
}

// Delete removes a scenario.
func (r *Registry) Delete(id string) error {
	_, err := r.store.Update(func(doc *models.CognitiveMap) error {
		i := doc.FindScenario(id)
		if i < 0 {
			return notFound(id)
		}
		doc.FCM.Scenarios = append(doc.FCM.Scenarios[:i], doc.FCM.Scenarios[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("scenario deleted", "id", id)
	return nil
}

// Run executes a scenario against the current graph, stores the result on
// the scenario and commits the document.
func (r *Registry) Run(ctx context.Context, id string) (models.Scenario, error) {
	var ran models.Scenario
	start := time.Now()
	_, err := r.store.Update(func(doc *models.CognitiveMap) error {
		i := doc.FindScenario(id)
		if i < 0 {
			return notFound(id)
		}
		s := &doc.FCM.Scenarios[i]
		result, err := r.engine.Run(ctx, doc, s.Params)
		if err != nil {
			return err
		}
		s.Result = result
		s.UpdatedAt = r.timestamp()
		ran = models.CloneScenario(*s)
		return nil
	})
	if err != nil {
		r.logger.Debug("scenario run failed", "id", id, "error", err)
		return models.Scenario{}, err
	}

	r.logger.Info("scenario run",
		"id", id,
		"iterations", ran.Result.IterationsCount,
		"converged", ran.Result.Converged,
		"duration", time.Since(start))
	r.logRun(ran, time.Since(start))
	return ran, nil
}

func (r *Registry) logRun(s models.Scenario, d time.Duration) {
	if r.runLog == nil {
		return
	}
	event := map[string]any{
		"event":          "scenario_run",
		"scenario_id":    s.ID,
		"name":           s.Params.Name,
		"iteration_mode": s.Params.IterationMode,
		"max_iterations": s.Params.MaxIterations,
		"iterations":     s.Result.IterationsCount,
		"converged":      s.Result.Converged,
		"duration_ms":    d.Milliseconds(),
		"final_states":   s.Result.FinalStates,
	}
	if r.runLog.Trace() {
		event["history"] = s.Result.History
	}
	r.runLog.Log(event)
}

// validate checks param structure and resolves initial-state keys against doc.
func (r *Registry) validate(doc *models.CognitiveMap, params models.ScenarioParams) error {
	if err := store.ValidateParams(params, r.engine.Config().MaxIterationsCeiling); err != nil {
		return err
	}
	return store.ValidateInitialStates(doc, params.InitialStates)
}

func (r *Registry) timestamp() time.Time {
	return r.now().UTC()
}

func notFound(id string) error {
	return &models.NotFoundError{Resource: "scenario", ID: id}
}

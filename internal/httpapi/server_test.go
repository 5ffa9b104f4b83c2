package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/cogmap/internal/fcm"
	"github.com/nvandessel/cogmap/internal/matrix"
	"github.com/nvandessel/cogmap/internal/metrics"
	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/project"
	"github.com/nvandessel/cogmap/internal/ratelimit"
	"github.com/nvandessel/cogmap/internal/scenario"
	"github.com/nvandessel/cogmap/internal/store"
	"github.com/nvandessel/cogmap/internal/trajectory"
)

const chainMap = `{
	"version": 1,
	"nodes": [
		{"id": "A", "label": "Rainfall", "ui": {"x": 0, "y": 0, "color": "#64748b"}},
		{"id": "B", "label": "River level", "ui": {"x": 1, "y": 0, "color": "#64748b"}},
		{"id": "C", "label": "Harvest", "ui": {"x": 2, "y": 0, "color": "#64748b"}}
	],
	"edges": [
		{"source": "A", "target": "B", "weight": 0.5},
		{"source": "B", "target": "C", "weight": -0.3}
	],
	"fcm": {"state_range": [-1, 1], "activation": {"type": "tanh", "lambda": 1}, "scenarios": []}
}`

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *store.MapStore
	project *project.Gateway
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(store.WithLogger(logger))
	gw := project.NewGateway(st, project.WithLogger(logger))
	reg := scenario.NewRegistry(st, fcm.NewEngine(fcm.DefaultConfig()), scenario.WithLogger(logger))

	opts = append([]Option{WithLogger(logger)}, opts...)
	srv := New(st, gw, reg, opts...)
	return &testEnv{server: srv, handler: srv.Handler(), store: st, project: gw}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}

func (e *testEnv) loadChain(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPut, APIPrefix+"/project/map", chainMap)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) createScenario(t *testing.T, body string) models.Scenario {
	t.Helper()
	w := e.do(t, http.MethodPost, APIPrefix+"/scenarios", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.Scenario](t, w)
}

const pushA = `{"name": "push A", "use_confidence": false, "iteration_mode": "fixed", "max_iterations": 3, "initial_states": {"A": 1}}`

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("GET returns ok", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("HEAD is allowed", func(t *testing.T) {
		w := env.do(t, http.MethodHead, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown path is 404", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/nope", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCORS(t *testing.T) {
	t.Run("default allows any origin", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodGet, APIPrefix+"/project/map", "")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		env := newTestEnv(t, WithCORSOrigin("http://localhost:5173"))
		w := env.do(t, http.MethodOptions, APIPrefix+"/project/map", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
		assert.Empty(t, w.Body.String())
	})
}

func TestProjectMap(t *testing.T) {
	t.Run("put then get round trips", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadChain(t)

		w := env.do(t, http.MethodGet, APIPrefix+"/project/map", "")
		require.Equal(t, http.StatusOK, w.Code)
		doc := decode[models.CognitiveMap](t, w)
		assert.Len(t, doc.Nodes, 3)
		assert.Len(t, doc.Edges, 2)
		assert.Equal(t, "River level", doc.Nodes[1].Label)
	})

	t.Run("putting the current map does not grow history", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadChain(t)
		env.loadChain(t)

		info := decode[models.HistoryInfo](t, env.do(t, http.MethodGet, APIPrefix+"/project/history", ""))
		assert.Equal(t, 2, info.HistoryLength)
		assert.Equal(t, 1, info.CurrentIndex)
	})

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"malformed json", `{"nodes": [`, "document"},
		{"unknown field", `{"nodes": [], "colour": "red"}`, "document"},
		{"dangling edge", `{"nodes": [{"id": "A", "ui": {"x":0,"y":0,"color":"#fff"}}], "edges": [{"source": "A", "target": "Z", "weight": 0.1}]}`, "edges[0].target"},
		{"weight out of range", `{"nodes": [{"id": "A", "ui": {"x":0,"y":0,"color":"#fff"}}, {"id": "B", "ui": {"x":0,"y":0,"color":"#fff"}}], "edges": [{"source": "A", "target": "B", "weight": 1.5}]}`, "edges[0].weight"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPut, APIPrefix+"/project/map", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.wantField, resp.Field)
			assert.NotEmpty(t, resp.Detail)

			info := env.store.Info()
			assert.Equal(t, 1, info.HistoryLength, "a rejected document must not be committed")
		})
	}
}

func TestUndoRedo(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, APIPrefix+"/project/undo", "")
	assert.Equal(t, http.StatusConflict, w.Code, "nothing to undo")

	env.loadChain(t)

	w = env.do(t, http.MethodPost, APIPrefix+"/project/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[models.CognitiveMap](t, w).Nodes)

	w = env.do(t, http.MethodPost, APIPrefix+"/project/redo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[models.CognitiveMap](t, w).Nodes, 3)

	w = env.do(t, http.MethodPost, APIPrefix+"/project/redo", "")
	assert.Equal(t, http.StatusConflict, w.Code, "nothing to redo")

	info := decode[models.HistoryInfo](t, env.do(t, http.MethodGet, APIPrefix+"/project/history", ""))
	assert.True(t, info.CanUndo)
	assert.False(t, info.CanRedo)
	assert.Equal(t, 20, info.Limit)
}

func TestProjectFiles(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, APIPrefix+"/project/save-to-file", "")
	assert.Equal(t, http.StatusConflict, w.Code, "save without an active project")

	first := filepath.Join(dir, "first.json")
	w = env.do(t, http.MethodPost, APIPrefix+"/project/new", fmt.Sprintf(`{"file_path": %q}`, first))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.loadChain(t)
	info := decode[project.Info](t, env.do(t, http.MethodGet, APIPrefix+"/project/info", ""))
	assert.Equal(t, first, info.FilePath)
	assert.True(t, info.Dirty)

	w = env.do(t, http.MethodPost, APIPrefix+"/project/save-to-file", "")
	require.Equal(t, http.StatusOK, w.Code)
	saved := decode[SaveResponse](t, w)
	assert.True(t, saved.OK)
	assert.Equal(t, first, saved.FilePath)
	assert.False(t, env.project.Info().Dirty)

	second := filepath.Join(dir, "second.json")
	w = env.do(t, http.MethodPost, APIPrefix+"/project/save-as", fmt.Sprintf(`{"file_path": %q}`, second))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, second, env.project.ActivePath())

	w = env.do(t, http.MethodPost, APIPrefix+"/project/open", fmt.Sprintf(`{"file_path": %q}`, first))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[models.CognitiveMap](t, w).Nodes, 3)
	assert.Equal(t, first, env.project.ActivePath())

	t.Run("open missing file is an i/o failure", func(t *testing.T) {
		w := env.do(t, http.MethodPost, APIPrefix+"/project/open", fmt.Sprintf(`{"file_path": %q}`, filepath.Join(dir, "absent.json")))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, first, env.project.ActivePath(), "failed open keeps the active project")
	})

	t.Run("empty path is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, APIPrefix+"/project/open", `{"file_path": ""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "file_path", decode[ErrorResponse](t, w).Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := env.do(t, http.MethodPost, APIPrefix+"/project/new", `{"path": "x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestScenarios(t *testing.T) {
	env := newTestEnv(t)
	env.loadChain(t)

	created := env.createScenario(t, pushA)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "push A", created.Params.Name)
	assert.Nil(t, created.Result)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	t.Run("list and get", func(t *testing.T) {
		list := decode[[]models.Scenario](t, env.do(t, http.MethodGet, APIPrefix+"/scenarios", ""))
		require.Len(t, list, 1)
		assert.Equal(t, created.ID, list[0].ID)

		w := env.do(t, http.MethodGet, APIPrefix+"/scenarios/"+created.ID, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, created.ID, decode[models.Scenario](t, w).ID)
	})

	t.Run("run returns the chain result", func(t *testing.T) {
		w := env.do(t, http.MethodPost, APIPrefix+"/scenarios/"+created.ID+"/run", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res := decode[models.ScenarioResult](t, w)

		assert.Equal(t, 3, res.IterationsCount)
		assert.InDelta(t, 1.0, res.FinalStates["A"], 1e-12)
		assert.InDelta(t, 0.4621, res.FinalStates["B"], 1e-4)
		assert.InDelta(t, -0.1378, res.FinalStates["C"], 1e-4)
		assert.Len(t, res.History, 4)

		stored := decode[models.Scenario](t, env.do(t, http.MethodGet, APIPrefix+"/scenarios/"+created.ID, ""))
		require.NotNil(t, stored.Result)
		assert.Equal(t, res.FinalStates, stored.Result.FinalStates)
	})

	t.Run("update keeps the result", func(t *testing.T) {
		w := env.do(t, http.MethodPut, APIPrefix+"/scenarios/"+created.ID,
			`{"name": "renamed", "iteration_mode": "auto", "max_iterations": 50, "convergence_threshold": 0.001, "initial_states": {"A": 0.5}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		updated := decode[models.Scenario](t, w)
		assert.Equal(t, "renamed", updated.Params.Name)
		assert.NotNil(t, updated.Result)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	})

	t.Run("invalid params", func(t *testing.T) {
		tests := []struct {
			name, body, field string
		}{
			{"unknown node", `{"name": "x", "iteration_mode": "fixed", "max_iterations": 3, "initial_states": {"Z": 1}}`, "params.initial_states.Z"},
			{"auto without threshold", `{"name": "x", "iteration_mode": "auto", "max_iterations": 3, "initial_states": {}}`, "params.convergence_threshold"},
			{"zero iterations", `{"name": "x", "iteration_mode": "fixed", "max_iterations": 0, "initial_states": {}}`, "params.max_iterations"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := env.do(t, http.MethodPost, APIPrefix+"/scenarios", tt.body)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, tt.field, decode[ErrorResponse](t, w).Field)
			})
		}
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		for _, req := range []struct{ method, path, body string }{
			{http.MethodGet, "/scenarios/missing", ""},
			{http.MethodPut, "/scenarios/missing", pushA},
			{http.MethodDelete, "/scenarios/missing", ""},
			{http.MethodPost, "/scenarios/missing/run", ""},
		} {
			w := env.do(t, req.method, APIPrefix+req.path, req.body)
			assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", req.method, req.path)
		}
	})

	t.Run("delete", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, APIPrefix+"/scenarios/"+created.ID, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok": true}`, w.Body.String())

		w = env.do(t, http.MethodGet, APIPrefix+"/scenarios/"+created.ID, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRunScenario_RateLimited(t *testing.T) {
	env := newTestEnv(t, WithRunLimiter(ratelimit.NewLimiter(0, 1)))
	env.loadChain(t)
	sc := env.createScenario(t, pushA)

	w := env.do(t, http.MethodPost, APIPrefix+"/scenarios/"+sc.ID+"/run", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, APIPrefix+"/scenarios/"+sc.ID+"/run", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestTrajectory(t *testing.T) {
	env := newTestEnv(t)
	env.loadChain(t)
	sc := env.createScenario(t, pushA)

	w := env.do(t, http.MethodGet, APIPrefix+"/scenarios/"+sc.ID+"/trajectory", "")
	assert.Equal(t, http.StatusConflict, w.Code, "no result yet")

	env.do(t, http.MethodPost, APIPrefix+"/scenarios/"+sc.ID+"/run", "")

	w = env.do(t, http.MethodGet, APIPrefix+"/scenarios/"+sc.ID+"/trajectory", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/vnd.apache.arrow.file", w.Header().Get("Content-Type"))

	tr, err := trajectory.Read(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, sc.ID, tr.ScenarioID)
	assert.Equal(t, []string{"A", "B", "C"}, tr.NodeIDs)
	assert.Len(t, tr.States, 4)
}

func TestMatrix(t *testing.T) {
	env := newTestEnv(t)
	env.loadChain(t)

	w := env.do(t, http.MethodGet, APIPrefix+"/matrix", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[matrix.View](t, w)
	assert.Equal(t, []string{"A", "B", "C"}, view.NodesOrder)
	require.NotNil(t, view.Matrix[0][1])
	assert.Equal(t, 0.5, *view.Matrix[0][1])
	assert.Nil(t, view.Matrix[1][0])

	t.Run("set creates an edge", func(t *testing.T) {
		w := env.do(t, http.MethodPut, APIPrefix+"/matrix/cell", `{"source_index": 2, "target_index": 0, "weight": -0.7}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		doc := decode[models.CognitiveMap](t, w)
		i := doc.FindEdge("C", "A")
		require.GreaterOrEqual(t, i, 0)
		assert.Equal(t, -0.7, doc.Edges[i].Weight)
		require.NotNil(t, doc.Edges[i].Confidence)
		assert.Equal(t, 1.0, *doc.Edges[i].Confidence)
	})

	t.Run("null weight deletes", func(t *testing.T) {
		w := env.do(t, http.MethodPut, APIPrefix+"/matrix/cell", `{"source_index": 0, "target_index": 1, "weight": null}`)
		require.Equal(t, http.StatusOK, w.Code)
		doc := decode[models.CognitiveMap](t, w)
		assert.Equal(t, -1, doc.FindEdge("A", "B"))
	})

	tests := []struct {
		name, body, field string
	}{
		{"missing source", `{"target_index": 1, "weight": 0.1}`, "source_index"},
		{"diagonal", `{"source_index": 1, "target_index": 1, "weight": 0.1}`, "target_index"},
		{"out of range", `{"source_index": 0, "target_index": 9, "weight": 0.1}`, "target_index"},
		{"negative index", `{"source_index": -1, "target_index": 1, "weight": 0.1}`, "source_index"},
		{"weight too large", `{"source_index": 0, "target_index": 2, "weight": 2}`, "weight"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			before := env.store.Hash()
			w := env.do(t, http.MethodPut, APIPrefix+"/matrix/cell", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.field, decode[ErrorResponse](t, w).Field)
			assert.Equal(t, before, env.store.Hash())
		})
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.loadChain(t)

	w := env.do(t, http.MethodGet, APIPrefix+"/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[metrics.Report](t, w)

	require.Len(t, report.Metrics, 3)
	assert.Equal(t, metrics.Driver, report.Metrics[0].Type)
	assert.Equal(t, metrics.Mediator, report.Metrics[1].Type)
	assert.Equal(t, metrics.Receiver, report.Metrics[2].Type)
	assert.Equal(t, 0.8, report.Metrics[1].Centrality)
	assert.Equal(t, 1, report.Statistics.Drivers)
}

func TestGraph(t *testing.T) {
	env := newTestEnv(t)
	env.loadChain(t)

	w := env.do(t, http.MethodGet, APIPrefix+"/graph.dot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/vnd.graphviz"))
	assert.Contains(t, w.Body.String(), "digraph cogmap")
	assert.Contains(t, w.Body.String(), `"A" -> "B"`)

	w = env.do(t, http.MethodGet, APIPrefix+"/graph.dot?format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = env.do(t, http.MethodGet, APIPrefix+"/graph.dot?format=svg", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&models.ValidationError{Field: "x", Issue: "invalid"}, http.StatusBadRequest},
		{&models.NotFoundError{Resource: "scenario", ID: "x"}, http.StatusNotFound},
		{&models.InvalidStateError{Op: "undo", Reason: "nothing to undo"}, http.StatusConflict},
		{&models.IOError{Op: "open", Path: "~/x.json", Err: errors.New("denied")}, http.StatusInternalServerError},
		{fmt.Errorf("open aborted: %w", &models.IOError{Op: "auto-save", Err: errors.New("full")}), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ratelimit.ErrRateLimited), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + APIPrefix + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, EventTypeHistory, first.Type)
	assert.Equal(t, 1, first.History.HistoryLength)

	require.Eventually(t, func() bool { return env.server.events.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+APIPrefix+"/project/map", strings.NewReader(chainMap))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next Event
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, 2, next.History.HistoryLength)
	assert.True(t, next.History.CanUndo)
	assert.True(t, next.History.Dirty)
}

func TestEvents_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, WithCORSOrigin("http://localhost:5173"))
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + APIPrefix + "/events"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListenAndServe(t *testing.T) {
	hooked := make(chan string, 1)
	env := newTestEnv(t, WithListenHook(func(addr string) { hooked <- addr }))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- env.server.ListenAndServe(ctx, "127.0.0.1:0") }()

	select {
	case addr := <-hooked:
		assert.Equal(t, env.server.Addr(), addr)
	case <-time.After(2 * time.Second):
		t.Fatal("listen hook not called")
	}

	resp, err := http.Get("http://" + env.server.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

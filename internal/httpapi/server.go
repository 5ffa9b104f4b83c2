// Package httpapi exposes the active cognitive map over HTTP: the JSON API
// under /api/v1, a websocket stream of history changes and a health check.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvandessel/cogmap/internal/project"
	"github.com/nvandessel/cogmap/internal/ratelimit"
	"github.com/nvandessel/cogmap/internal/scenario"
	"github.com/nvandessel/cogmap/internal/store"
)

// APIPrefix is the path prefix of every JSON endpoint.
const APIPrefix = "/api/v1"

// maxBodyBytes caps request bodies. Whole documents travel in PUT /project/map.
const maxBodyBytes = 16 << 20

// Server routes HTTP requests to the map store, project gateway and
// scenario registry.
type Server struct {
	store     *store.MapStore
	project   *project.Gateway
	scenarios *scenario.Registry
	logger    *slog.Logger

	corsOrigin string
	runLimiter *ratelimit.Limiter
	events     *hub
	upgrader   websocket.Upgrader
	onListen   func(addr string)

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCORSOrigin sets the Access-Control-Allow-Origin value. Default "*".
func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

// WithRunLimiter limits scenario runs per client address. nil disables it.
func WithRunLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.runLimiter = l }
}

// WithListenHook calls fn with the bound address once the listener is up.
func WithListenHook(fn func(addr string)) Option {
	return func(s *Server) { s.onListen = fn }
}

// New creates a server and subscribes it to store commits.
func New(st *store.MapStore, gw *project.Gateway, reg *scenario.Registry, opts ...Option) *Server {
	s := &Server{
		store:      st,
		project:    gw,
		scenarios:  reg,
		logger:     slog.Default(),
		corsOrigin: "*",
		runLimiter: ratelimit.NewLimiterFromRate(ratelimit.HTTPRunRate),
		events:     newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	st.OnCommit(s.events.publish)
	return s
}

// Handler returns the full route table wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)

	mux.HandleFunc("GET "+APIPrefix+"/project/map", s.handleGetMap)
	mux.HandleFunc("PUT "+APIPrefix+"/project/map", s.handlePutMap)
	mux.HandleFunc("POST "+APIPrefix+"/project/undo", s.handleUndo)
	mux.HandleFunc("POST "+APIPrefix+"/project/redo", s.handleRedo)
	mux.HandleFunc("GET "+APIPrefix+"/project/history", s.handleHistory)
	mux.HandleFunc("POST "+APIPrefix+"/project/save-to-file", s.handleSave)
	mux.HandleFunc("POST "+APIPrefix+"/project/new", s.handleNew)
	mux.HandleFunc("POST "+APIPrefix+"/project/open", s.handleOpen)
	mux.HandleFunc("POST "+APIPrefix+"/project/save-as", s.handleSaveAs)
	mux.HandleFunc("GET "+APIPrefix+"/project/info", s.handleInfo)

	mux.HandleFunc("GET "+APIPrefix+"/scenarios", s.handleListScenarios)
	mux.HandleFunc("POST "+APIPrefix+"/scenarios", s.handleCreateScenario)
	mux.HandleFunc("GET "+APIPrefix+"/scenarios/{id}", s.handleGetScenario)
	mux.HandleFunc("PUT "+APIPrefix+"/scenarios/{id}", s.handleUpdateScenario)
	mux.HandleFunc("DELETE "+APIPrefix+"/scenarios/{id}", s.handleDeleteScenario)
	mux.HandleFunc("POST "+APIPrefix+"/scenarios/{id}/run", s.handleRunScenario)
	mux.HandleFunc("GET "+APIPrefix+"/scenarios/{id}/trajectory", s.handleTrajectory)

	mux.HandleFunc("GET "+APIPrefix+"/matrix", s.handleGetMatrix)
	mux.HandleFunc("PUT "+APIPrefix+"/matrix/cell", s.handleSetCell)
	mux.HandleFunc("GET "+APIPrefix+"/metrics", s.handleMetrics)
	mux.HandleFunc("GET "+APIPrefix+"/graph.dot", s.handleGraph)

	mux.HandleFunc("GET "+APIPrefix+"/events", s.handleEvents)

	return s.cors(s.logRequests(mux))
}

// Addr returns the address the server is listening on, or "" before start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. A port of 0 lets the OS pick one; see Addr.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.events.close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server forced to shutdown", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	if s.onListen != nil {
		s.onListen(ln.Addr().String())
	}
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.corsOrigin == "*" || origin == s.corsOrigin
}

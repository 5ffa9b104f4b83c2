package httpapi

import (
	"fmt"
	"net"
	"net/http"

	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/ratelimit"
	"github.com/nvandessel/cogmap/internal/trajectory"
)

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scenarios.List())
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scenarios.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var params models.ScenarioParams
	if err := decodeBody(w, r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	sc, err := s.scenarios.Create(params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	var params models.ScenarioParams
	if err := decodeBody(w, r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	sc, err := s.scenarios.Update(r.PathValue("id"), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := s.scenarios.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRunScenario runs a scenario and responds with its result only.
func (s *Server) handleRunScenario(w http.ResponseWriter, r *http.Request) {
	if s.runLimiter != nil && !s.runLimiter.Allow(clientKey(r)) {
		s.writeError(w, r, fmt.Errorf("%w: too many scenario runs", ratelimit.ErrRateLimited))
		return
	}
	sc, err := s.scenarios.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc.Result)
}

// handleTrajectory streams the last run of a scenario as an Arrow IPC file.
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	doc := s.store.Get()
	id := r.PathValue("id")
	i := doc.FindScenario(id)
	if i < 0 {
		s.writeError(w, r, &models.NotFoundError{Resource: "scenario", ID: id})
		return
	}
	t, err := trajectory.FromScenario(doc, doc.FCM.Scenarios[i])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := trajectory.Encode(t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.arrow.file")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".arrow"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package httpapi

import (
	"net/http"

	"github.com/nvandessel/cogmap/internal/matrix"
	"github.com/nvandessel/cogmap/internal/metrics"
	"github.com/nvandessel/cogmap/internal/models"
	"github.com/nvandessel/cogmap/internal/visualization"
)

// CellRequest is the body of PUT /matrix/cell. Both indices are required;
// a null or absent weight deletes the edge.
type CellRequest struct {
	SourceIndex *int     `json:"source_index"`
	TargetIndex *int     `json:"target_index"`
	Weight      *float64 `json:"weight"`
	Confidence  *float64 `json:"confidence"`
}

func (s *Server) handleGetMatrix(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, matrix.Build(s.store.Get()))
}

func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	var req CellRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SourceIndex == nil {
		s.writeError(w, r, &models.ValidationError{Field: "source_index", Issue: "missing", Detail: "source_index is required"})
		return
	}
	if req.TargetIndex == nil {
		s.writeError(w, r, &models.ValidationError{Field: "target_index", Issue: "missing", Detail: "target_index is required"})
		return
	}

	cell := matrix.Cell{
		SourceIndex: *req.SourceIndex,
		TargetIndex: *req.TargetIndex,
		Weight:      req.Weight,
		Confidence:  req.Confidence,
	}
	doc, err := s.store.Update(func(doc *models.CognitiveMap) error {
		return matrix.SetCell(doc, cell)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Compute(s.store.Get()))
}

// handleGraph renders the map as Graphviz DOT, or as node/edge JSON with
// ?format=json.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	format := visualization.FormatDOT
	if f := r.URL.Query().Get("format"); f != "" {
		format = visualization.Format(f)
	}
	out, err := visualization.Render(s.store.Get(), format)
	if err != nil {
		s.writeError(w, r, &models.ValidationError{Field: "format", Issue: "invalid", Detail: err.Error()})
		return
	}

	if format == visualization.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

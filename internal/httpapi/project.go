package httpapi

import (
	"net/http"

	"github.com/nvandessel/cogmap/internal/models"
)

// FilePathRequest is the body of the new, open and save-as endpoints.
type FilePathRequest struct {
	FilePath string `json:"file_path"`
}

// SaveResponse reports where a project was written.
type SaveResponse struct {
	OK       bool   `json:"ok"`
	FilePath string `json:"file_path"`
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) handlePutMap(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	candidate, err := models.DecodeCognitiveMap(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.store.Replace(candidate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Undo()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Redo()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Info())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	path, err := s.project.Save(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{OK: true, FilePath: path})
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	var req FilePathRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.project.NewProject(r.Context(), req.FilePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req FilePathRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.project.Open(r.Context(), req.FilePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSaveAs(w http.ResponseWriter, r *http.Request) {
	var req FilePathRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	path, err := s.project.SaveAs(r.Context(), req.FilePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{OK: true, FilePath: path})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.project.Info())
}

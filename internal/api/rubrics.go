package api

import (
	"net/http"
	"strings"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

type rubricRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100"`
	Content *string `json:"content" validate:"omitempty,min=1"`
}

func (s *Server) handleListRubrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _, err := queryInt(q, "offset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, ok, err := queryInt(q, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if offset < 0 || limit < 0 {
		s.fail(w, r, badRequest("offset and limit must not be negative"))
		return
	}
	if !ok || limit == 0 {
		limit = 20
	}
	items, total, err := s.store.ListRubrics(r.Context(), offset, min(limit, 200))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.Rubric{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (s *Server) handleCreateRubric(w http.ResponseWriter, r *http.Request) {
	var req rubricRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" || req.Content == nil || strings.TrimSpace(*req.Content) == "" {
		s.fail(w, r, badRequest("name and content are required"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	rubric := &model.Rubric{Name: *req.Name, Content: *req.Content}
	if err := s.store.CreateRubric(r.Context(), rubric); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rubric)
}

func (s *Server) handleUpdateRubric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req rubricRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Name == nil && req.Content == nil {
		s.fail(w, r, badRequest("no updatable fields provided"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	rubric, err := s.store.UpdateRubric(r.Context(), id, req.Name, req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rubric)
}

func (s *Server) handleDeleteRubric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.DeleteRubric(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateRubric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.ActivateRubric(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	rubric, err := s.store.GetRubric(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rubric)
}

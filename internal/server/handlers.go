package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/retreat896/MobileDev-Assignment02/internal/store"
	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleListRobots(w http.ResponseWriter, r *http.Request) {
	all, err := s.repo.List(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, all)
}

func (s *Server) handleGetRobot(w http.ResponseWriter, r *http.Request) {
	robot, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, robot)
}

func (s *Server) handleCreateRobot(w http.ResponseWriter, r *http.Request) {
	// Any "id" in the body is ignored: Draft has no such field.
	var draft robots.Draft
	if err := decodeBody(w, r, &draft); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := draft.Validate(); err != nil {
		validationError(w, err)
		return
	}

	created, err := s.repo.Create(r.Context(), draft)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.Logger.Info("robot created", "id", created.ID, "name", created.Name)
	JSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRobot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		ID *robots.ID `json:"id"`
		robots.Patch
	}
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.ID != nil && *req.ID != "" && req.ID.String() != id {
		Error(w, http.StatusBadRequest, "body id does not match path id")
		return
	}
	if err := req.Patch.Validate(); err != nil {
		validationError(w, err)
		return
	}

	updated, err := s.repo.Update(r.Context(), id, req.Patch)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.Logger.Info("robot updated", "id", updated.ID)
	JSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRobot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.Delete(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.Logger.Info("robot deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func validationError(w http.ResponseWriter, err error) {
	var verr *robots.ValidationError
	if !errors.As(err, &verr) {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	JSON(w, http.StatusUnprocessableEntity, map[string]string{
		"detail": verr.Error(),
		"field":  verr.Field,
	})
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "Robot not found")
	case errors.Is(err, store.ErrUnavailable):
		s.Logger.Error("storage unavailable", "path", r.URL.Path, "err", err)
		Error(w, http.StatusServiceUnavailable, "Database not reachable")
	default:
		s.Logger.Error("storage failure", "path", r.URL.Path, "err", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

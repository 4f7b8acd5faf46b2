package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/framephase/pkg/model"
)

// runDetail is a run plus its event counts per kind.
type runDetail struct {
	*model.Run
	Events map[model.EventKind]int `json:"events"`
}

// requireStore answers 503 when no trace store is configured.
func (s *Server) requireStore(w http.ResponseWriter, reqID string) bool {
	if s.store != nil {
		return true
	}
	respondError(w, reqID, http.StatusServiceUnavailable,
		&model.APIError{Code: model.ErrUnavailable, Message: "trace store is not configured"})
	return false
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}

	opts, fieldErrs := parseListOptions(r)
	if len(fieldErrs) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid query", fieldErrs...))
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondList(w, reqID, runs, pagination(opts, total))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return
	}

	counts, err := s.store.CountEvents(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondOK(w, reqID, runDetail{Run: run, Events: counts})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")

	opts, fieldErrs := parseListOptions(r)
	var filter model.EventFilter
	q := r.URL.Query()
	if v := q.Get("block"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fieldErrs = append(fieldErrs, model.FieldError{Field: "block", Message: "must be a non-negative integer"})
		} else {
			filter.Block = &n
		}
	}
	if v := q.Get("kind"); v != "" {
		filter.Kind = model.EventKind(v)
		if !filter.Kind.IsValid() {
			fieldErrs = append(fieldErrs, model.FieldError{Field: "kind", Message: "unknown event kind " + strconv.Quote(v)})
		}
	}
	if len(fieldErrs) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid query", fieldErrs...))
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), id, filter, opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondList(w, reqID, events, pagination(opts, total))
}

package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/framephase/pkg/model"
)

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	blocks := s.status.Snapshot()
	if blocks == nil {
		blocks = []model.BlockState{}
	}
	respondOK(w, reqID, blocks)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	raw := chi.URLParam(r, "index")

	index, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid block index",
			model.FieldError{Field: "index", Message: "must be an integer"}))
		return
	}
	blocks := s.status.Snapshot()
	if index < 0 || index >= len(blocks) {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("block", raw))
		return
	}
	respondOK(w, reqID, blocks[index])
}

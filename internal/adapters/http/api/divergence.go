package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// handleTopDivergence handles GET /divergence?limit=N.
func (s *Server) handleTopDivergence(w http.ResponseWriter, r *http.Request) {
	const op = "api.top_divergence"
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be a positive integer")))
		return
	}
	if n > s.maxBoardLimit {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("limit exceeds %d", s.maxBoardLimit)))
		return
	}
	entries, err := s.deps.TopDivergence(r.Context(), n)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleDivergenceRank handles GET /divergence/{id}.
func (s *Server) handleDivergenceRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.divergence_rank"
	entry, err := s.deps.DivergenceRank(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

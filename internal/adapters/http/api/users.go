package api

import (
	"net/http"

	"github.com/google/uuid"
)

// handlePutKarma handles PUT /users/{id}/karma. An omitted handle keeps the stored one.
func (s *Server) handlePutKarma(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_karma"
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req karmaRequest
	if err := s.decode(r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.deps.SetKarma(r.Context(), id, req.Handle, *req.Karma)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

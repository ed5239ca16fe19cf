package api

import (
	"net/http"
	"strings"

	"github.com/huishype/huishype/internal/domain/model"
)

// handlePutProperty handles PUT /properties/{id}. It responds with the fresh estimate.
func (s *Server) handlePutProperty(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_property"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, r, NewKind(op, ErrBadRequest))
		return
	}
	var req propertyRequest
	if err := s.decode(r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.UpsertProperty(r.Context(), model.Property{
		ID:          id,
		Address:     req.Address,
		WOZValue:    req.WOZValue,
		AskingPrice: req.AskingPrice,
	})
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetFMV handles GET /properties/{id}/fmv.
func (s *Server) handleGetFMV(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_fmv"
	res, err := s.deps.CurrentFMV(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePropertyStats handles GET /properties/{id}/stats.
func (s *Server) handlePropertyStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.property_stats"
	st, err := s.deps.PropertyStats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

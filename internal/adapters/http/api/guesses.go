package api

import (
	"net/http"
	"strings"

	"github.com/huishype/huishype/internal/adapters/http/auth"
	"github.com/huishype/huishype/internal/domain/model"
)

// IdempotencyHeader carries an optional client key that makes guess
// submission safe to retry.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// handlePostGuess handles POST /properties/{id}/guesses.
func (s *Server) handlePostGuess(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_guess"
	userID, err := auth.UserID(r.Context())
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrUnauthorized, err))
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		s.writeError(w, r, NewKind(op, ErrBadRequest))
		return
	}
	var req guessRequest
	if err := s.decode(r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	duplicate, err := s.deps.SubmitGuess(r.Context(), model.GuessEvent{
		EventID: key,
		Guess: model.Guess{
			PropertyID: r.PathValue("id"),
			UserID:     userID,
			Price:      req.Price,
			Meme:       req.Meme,
		},
	})
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// handleDeleteGuess handles DELETE /properties/{id}/guesses/mine.
func (s *Server) handleDeleteGuess(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_guess"
	userID, err := auth.UserID(r.Context())
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrUnauthorized, err))
		return
	}
	if err := s.deps.RetractGuess(r.Context(), r.PathValue("id"), userID); err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

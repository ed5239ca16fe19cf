// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/huishype/huishype/internal/adapters/http/auth"
	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
	"github.com/huishype/huishype/internal/domain/types"
	"github.com/huishype/huishype/pkg/logger"
)

const defaultMaxBoardLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitGuess(ctx context.Context, ev model.GuessEvent) (duplicate bool, err error)
	RetractGuess(ctx context.Context, propertyID string, userID uuid.UUID) error

	CurrentFMV(ctx context.Context, propertyID string) (fmv.Result, error)
	UpsertProperty(ctx context.Context, p model.Property) (fmv.Result, error)
	SetKarma(ctx context.Context, id uuid.UUID, handle string, karma int) (model.User, error)
	PropertyStats(ctx context.Context, propertyID string) (types.PropertyStats, error)

	TopDivergence(ctx context.Context, n int) ([]Entry, error)
	DivergenceRank(ctx context.Context, propertyID string) (Entry, error)
}

// Entry mirrors the read shape returned by divergence queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	deps          Dependencies
	stats         StatsProvider
	tokens        auth.TokenValidator
	live          http.Handler
	maxBoardLimit int
	validate      *validator.Validate
	logger        logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxBoardLimit caps the limit accepted by GET /divergence.
func WithMaxBoardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBoardLimit = n
		}
	}
}

// WithLiveUpdates mounts h at GET /ws/fmv.
func WithLiveUpdates(h http.Handler) Option {
	return func(s *Server) {
		s.live = h
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server. tokens authenticates guess submissions.
func NewServer(deps Dependencies, stats StatsProvider, tokens auth.TokenValidator, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		stats:         stats,
		tokens:        tokens,
		maxBoardLimit: defaultMaxBoardLimit,
		validate:      validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	authed := auth.Middleware(s.tokens)

	handle := func(pattern, endpoint string, h http.Handler) {
		mux.Handle(pattern, MetricsMiddleware(h, endpoint))
	}

	handle("GET /healthz", "healthz", http.HandlerFunc(s.handleHealth))
	handle("GET /metrics", "metrics", metricsHandler())
	handle("GET /stats", "stats", http.HandlerFunc(s.handleStats))

	handle("PUT /properties/{id}", "put_property", http.HandlerFunc(s.handlePutProperty))
	handle("GET /properties/{id}/fmv", "get_fmv", http.HandlerFunc(s.handleGetFMV))
	handle("GET /properties/{id}/stats", "property_stats", http.HandlerFunc(s.handlePropertyStats))
	handle("POST /properties/{id}/guesses", "post_guess", authed(http.HandlerFunc(s.handlePostGuess)))
	handle("DELETE /properties/{id}/guesses/mine", "delete_guess", authed(http.HandlerFunc(s.handleDeleteGuess)))
	handle("PUT /users/{id}/karma", "put_karma", http.HandlerFunc(s.handlePutKarma))

	handle("GET /divergence", "divergence", http.HandlerFunc(s.handleTopDivergence))
	handle("GET /divergence/{id}", "divergence_rank", http.HandlerFunc(s.handleDivergenceRank))

	if s.live != nil {
		handle("GET /ws/fmv", "ws_fmv", s.live)
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return WrapKind(op, ErrBadRequest, errors.New(validationMessage(err)))
	}
	return nil
}

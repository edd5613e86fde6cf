// Package server exposes a kith store over HTTP with a JSON API.
//
// Endpoints:
//
//	GET    /health                        liveness
//	GET    /stats                         store statistics
//	GET    /users                         all users in creation order
//	POST   /users                         create a user {"name": ...}
//	DELETE /users                         remove every user (full wipe)
//	GET    /users/{name}                  look a user up by name
//	GET    /users/{name}/friends          a user's friends
//	POST   /friendships                   befriend two users {"a": ..., "b": ...}
//	GET    /nodes/{id}                    a node and its properties
//	GET    /nodes/{id}/relationships      ?dir=out|in|both&type=T (repeatable)
//	POST   /compact                       rewrite the commit log
//
// Errors are returned as ErrorResponse with a status derived from the
// graph error kind: 404 for not found, 409 for constraint violations and
// ambiguous lookups, 503 once the store is closed, 500 otherwise.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/graphdb"
	"github.com/dreamware/kith/internal/social"
)

// Server serves the HTTP API for one store.
type Server struct {
	store  *graphdb.Store
	dir    *social.Directory
	logger *zap.Logger
	mux    *http.ServeMux
}

// New creates a server for store. A nil logger disables request logging.
//
// Example:
//
//	srv := server.New(store, logger)
//	httpServer := &http.Server{Addr: ":7474", Handler: srv}
func New(store *graphdb.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		dir:    social.NewDirectory(store, logger),
		logger: logger.Named("http"),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)

	s.mux.HandleFunc("GET /users", s.handleListUsers)
	s.mux.HandleFunc("POST /users", s.handleCreateUser)
	s.mux.HandleFunc("DELETE /users", s.handleRemoveAll)
	s.mux.HandleFunc("GET /users/{name}", s.handleGetUser)
	s.mux.HandleFunc("GET /users/{name}/friends", s.handleFriends)
	s.mux.HandleFunc("POST /friendships", s.handleBefriend)

	s.mux.HandleFunc("GET /nodes/{id}", s.handleGetNode)
	s.mux.HandleFunc("GET /nodes/{id}/relationships", s.handleRelationships)

	s.mux.HandleFunc("POST /compact", s.handleCompact)
}

// ServeHTTP logs each request and dispatches it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("elapsed", time.Since(start)),
	}
	if rec.status >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", fields...)
		return
	}
	s.logger.Debug("Request served", fields...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON encodes v before touching the response, so a value that cannot
// be encoded becomes a 500 with an error body instead of a truncated 2xx.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Response encoding failed", zap.Int("status", status), zap.Error(err))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Error: "encode response: " + err.Error(), Code: CodeInternal})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debug("Response write failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// writeStoreError maps a store error to its status and code.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	s.writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, graph.ErrConstraintViolation):
		return http.StatusConflict, CodeConstraintViolation
	case errors.Is(err, graph.ErrAmbiguousResult):
		return http.StatusConflict, CodeAmbiguousResult
	case errors.Is(err, graph.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, graph.ErrClosed):
		return http.StatusServiceUnavailable, CodeClosed
	case errors.Is(err, graph.ErrIOFailure):
		return http.StatusInternalServerError, CodeIOFailure
	}
	return http.StatusInternalServerError, CodeInternal
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Package api exposes the HTTP surface: uploads, manual entry, search,
// corrections, reanalysis, rubric management and signed file links.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/objectstore"
	"github.com/dharsanguruparan/ResumeVault/internal/repository"
	"github.com/dharsanguruparan/ResumeVault/internal/search"
	"github.com/dharsanguruparan/ResumeVault/internal/signing"
)

// Dispatcher hands documents to the processing pipeline, either in process
// or through the work queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, id int64) error
	DispatchBatch(ctx context.Context, ids []int64) error
}

// Options configure the HTTP server.
type Options struct {
	Address        string
	MaxUploadBytes int64
	// PublicBaseURL prefixes signed links. Derived from the request when empty.
	PublicBaseURL string
	SignedURLTTL  time.Duration
}

// Deps are the collaborators of a Server.
type Deps struct {
	Store      repository.Store
	Objects    objectstore.Store
	Dispatcher Dispatcher
	Search     *search.Engine
	Signer     *signing.Signer
	Logger     *zap.Logger
}

// Server exposes HTTP endpoints for resume intake and review.
type Server struct {
	opts       Options
	store      repository.Store
	objects    objectstore.Store
	dispatcher Dispatcher
	search     *search.Engine
	signer     *signing.Signer
	validate   *validator.Validate
	logger     *zap.Logger

	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(opts Options, deps Deps) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 15 * time.Minute
	}
	if deps.Search == nil {
		deps.Search = search.NewEngine(deps.Store, nil, deps.Logger)
	}
	return &Server{
		opts:       opts,
		store:      deps.Store,
		objects:    deps.Objects,
		dispatcher: deps.Dispatcher,
		search:     deps.Search,
		signer:     deps.Signer,
		validate:   newValidator(),
		logger:     logger.OrNop(deps.Logger),
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /documents", s.handleUpload)
	mux.HandleFunc("POST /documents/manual", s.handleManual)
	mux.HandleFunc("GET /documents", s.handleSearch)
	mux.HandleFunc("DELETE /documents", s.handleBulkDelete)
	mux.HandleFunc("POST /documents/reanalyze", s.handleReanalyzeMany)
	mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	mux.HandleFunc("PATCH /documents/{id}", s.handleCorrect)
	mux.HandleFunc("GET /documents/{id}/evaluations", s.handleEvaluations)
	mux.HandleFunc("GET /documents/{id}/file-url", s.handleFileURL)
	mux.HandleFunc("POST /documents/{id}/reanalyze", s.handleReanalyzeOne)
	mux.HandleFunc("GET /files/{id}", s.handleDownload)

	mux.HandleFunc("GET /rubrics", s.handleListRubrics)
	mux.HandleFunc("POST /rubrics", s.handleCreateRubric)
	mux.HandleFunc("PUT /rubrics/{id}", s.handleUpdateRubric)
	mux.HandleFunc("DELETE /rubrics/{id}", s.handleDeleteRubric)
	mux.HandleFunc("POST /rubrics/{id}/activate", s.handleActivateRubric)

	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.opts.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", zap.String("address", s.opts.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorBody{Error: msg})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		searchErr *search.ValidationError
		fieldErrs validator.ValidationErrors
		reqErr    *requestError
	)
	switch {
	case errors.As(err, &reqErr):
		s.respondError(w, reqErr.status, reqErr.msg)
	case errors.As(err, &searchErr):
		s.respondError(w, http.StatusBadRequest, searchErr.Error())
	case errors.As(err, &fieldErrs):
		s.respondJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: describe(fieldErrs)})
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, objectstore.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrNoActiveRubric):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// requestError carries a client-facing status and message.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid json body: " + err.Error())
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if strings.HasPrefix(r.URL.Path, "/healthz") {
			return
		}
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// Package api exposes reconciliation over HTTP.
//
// Routes:
//
//	GET    /health
//	POST   /api/v1/reconcile          JSON rows for both datasets
//	POST   /api/v1/reconcile/upload   multipart "left" and "right" files
//	GET    /api/v1/runs               stored runs, newest first
//	GET    /api/v1/runs/{id}          one stored run with its report
//	DELETE /api/v1/runs/{id}
//
// The run routes exist only when the server has a run repository.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"golang-pv-reconciliation/internal/parsers"
	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/internal/store"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// RunRepository stores reconciliation runs
type RunRepository interface {
	Save(ctx context.Context, result *reconciler.ReconciliationResult) error
	Get(ctx context.Context, id uuid.UUID) (*store.Run, error)
	List(ctx context.Context, limit int) ([]store.RunInfo, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Config holds API server configuration
type Config struct {
	Addr string `json:"addr"`

	// MaxBodyBytes limits JSON bodies and multipart uploads
	MaxBodyBytes int64 `json:"max_body_bytes"`

	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DefaultConfig returns sensible defaults for the API server
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8080",
		MaxBodyBytes: 32 << 20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "addr", nil, nil)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_body_bytes", c.MaxBodyBytes, nil)
	}
	return nil
}

// Server is the HTTP API server
type Server struct {
	config     *Config
	router     chi.Router
	httpServer *http.Server
	logger     logger.Logger

	service *reconciler.ReconciliationService
	reader  *parsers.TableReader
	runs    RunRepository
}

// NewServer creates a new API server. runs may be nil, in which case run
// history is disabled.
func NewServer(config *Config, service *reconciler.ReconciliationService, reader *parsers.TableReader, runs RunRepository, log logger.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reconciliation service", nil, nil)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if reader == nil {
		var err error
		if reader, err = parsers.NewTableReader(nil, log); err != nil {
			return nil, err
		}
	}

	s := &Server{
		config:  config,
		router:  chi.NewRouter(),
		logger:  log.WithComponent("api"),
		service: service,
		reader:  reader,
		runs:    runs,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/reconcile", s.reconcileRows)
		r.Post("/reconcile/upload", s.reconcileUpload)

		if s.runs != nil {
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{id}", s.getRun)
			r.Delete("/runs/{id}", s.deleteRun)
		}
	})
}

// Handler returns the root handler, e.g. for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the context is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.config.Addr).Info("Starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.InternalError(errors.CodeUnexpectedError, "http server", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request through the service logger
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.WithFields(logger.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Info("Request handled")
		})
	}
}

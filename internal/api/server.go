// Package api serves the moderation pipeline over HTTP for collaborators
// that do not speak NATS.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/whisper/comment-moderator/internal/metrics"
	"github.com/whisper/comment-moderator/internal/protocol"
	"github.com/whisper/comment-moderator/internal/service"
)

// Checker moderates one request. *service.Service satisfies it.
type Checker interface {
	Check(ctx context.Context, req protocol.CheckRequest) (protocol.CheckResult, error)
}

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// Config holds the server configuration.
type Config struct {
	Addr            string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration. WriteTimeout covers
// two model attempts.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Option configures the server.
type Option func(*Server)

// WithHealthCheck adds a named dependency to GET /health.
func WithHealthCheck(name string, fn HealthFunc) Option {
	return func(s *Server) {
		s.checks = append(s.checks, namedCheck{name: name, fn: fn})
	}
}

type namedCheck struct {
	name string
	fn   HealthFunc
}

// Server is the HTTP API.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	config     Config
	checker    Checker
	checks     []namedCheck
	logger     *slog.Logger
}

// New creates a Server.
func New(cfg Config, checker Checker, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:  cfg,
		checker: checker,
		logger:  logger.With("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if len(s.config.CORSOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		})
		r.Use(c.Handler)
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/moderate", s.handleModerate)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// handleModerate serves POST /api/v1/moderate. comment_id is optional here;
// the verdict is returned in the response body.
func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, protocol.MaxRequestBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, protocol.ErrorResponse{Code: protocol.CodeBadRequest, Message: "failed to read body"})
		return
	}
	req, err := protocol.ParseCheckRequest(body, false)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, protocol.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondError(w, status, protocol.ErrorResponse{Code: protocol.CodeBadRequest, Message: err.Error()})
		return
	}

	res, err := s.checker.Check(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		respondError(w, http.StatusTooManyRequests, protocol.ErrorResponse{
			Code:       protocol.CodeRateLimited,
			Message:    "too many comments, slow down",
			RetryAfter: 60,
		})
		return
	case err != nil:
		s.logger.Error("check failed", "error", err)
		respondError(w, http.StatusInternalServerError, protocol.ErrorResponse{Code: protocol.CodeInternal, Message: "moderation failed"})
		return
	}

	respondJSON(w, http.StatusOK, res)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for _, c := range s.checks {
		if err := c.fn(ctx); err != nil {
			resp.Checks[c.name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.name] = "ok"
	}
	respondJSON(w, status, resp)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, resp protocol.ErrorResponse) {
	respondJSON(w, status, resp)
}

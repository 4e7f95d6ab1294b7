// Package server provides the HTTP status API: read access to run artifacts
// and the run index, plus batch submission with a live progress stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jonathan/idea-forge/internal/archive"
	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/batch"
	"github.com/jonathan/idea-forge/internal/config"
	"github.com/jonathan/idea-forge/internal/db"
	"github.com/jonathan/idea-forge/internal/ledger"
	"github.com/jonathan/idea-forge/internal/server/middleware"
	"github.com/jonathan/idea-forge/internal/server/ratelimit"
)

// Options wires the server to the rest of the system. Store is required;
// everything else is optional and the matching endpoints report 503 when unset.
type Options struct {
	Port     int
	Store    *artifacts.Store
	Index    db.Store
	Archiver *archive.Manager
	// Runner executes submitted batches.
	Runner batch.Runner
	// Ledger, when set, receives submitted ideas in pending.md and their outcomes.
	Ledger *ledger.Files
	// Batch holds the defaults for submitted batches.
	Batch batch.Options
	// JWT enables bearer authentication on every endpoint except /health.
	JWT       *config.JWTConfig
	RateLimit *ratelimit.Config
	Logger    *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	router      chi.Router
	opts        Options
	logger      *slog.Logger
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	batches     *batchRegistry
	now         func() time.Time

	// baseCtx outlives requests; batches run under it until Shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:        opts,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		batches:     newBatchRegistry(),
		now:         time.Now,
		baseCtx:     baseCtx,
		cancelBase:  cancel,
	}
	if opts.JWT != nil {
		s.jwtService = NewJWTService(opts.JWT)
	}

	r := chi.NewRouter()
	r.Use(s.withLogging, s.withCORS, s.withRateLimit)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.jwtService != nil {
			r.Use(middleware.AuthMiddleware(s.jwtService.AsTokenValidator()))
		}

		r.Get("/runs", s.handleListRuns)
		r.Route("/runs/{slug}", func(r chi.Router) {
			r.Get("/history", s.handleRunHistory)
			r.Get("/summary", s.handleRunSummary)
			r.Get("/metadata", s.handleRunMetadata)
			r.Get("/analysis", s.handleRunAnalysis)
			r.Get("/archives", s.handleRunArchives)
			r.Get("/steps", s.handleRunSteps)
		})

		r.Post("/batches", s.handleCreateBatch)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Get("/batches/{id}/events", s.handleBatchEvents)
	})
	s.router = r

	port := opts.Port
	if port == 0 {
		port = config.DefaultPort
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: event streams stay open for a whole batch.
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr, "auth", s.jwtService != nil)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests, cancels running batches and waits for
// them to record their outcome.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("server shutdown failed: %w", ctx.Err())
	}

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Close cancels running batches and stops background work without waiting.
func (s *Server) Close() {
	s.cancelBase()
	s.rateLimiter.Stop()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their token budget with 429.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
		}
		if !allowed {
			retry := int(info.RetryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			s.logger.Warn("rate limit exceeded", "client", clientID(r), "path", r.URL.Path, "limit", info.Limit)
			s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
				"error":       "rate_limit_exceeded",
				"retry_after": retry,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr,
			"duration", s.now().Sub(start))
	})
}

// clientID uses the IP address from RemoteAddr.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "ok",
		"index":  s.opts.Index != nil,
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err onto a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.errorResponse(w, status, err.Error())
}

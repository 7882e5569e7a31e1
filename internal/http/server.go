// Package http exposes the summary, categorization, and budget management
// operations over a small JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/export"
	"bilancio/internal/jobs"
	"bilancio/internal/log"
	"bilancio/internal/summary"
)

// EventPublisher is the optional hook used to announce cache invalidations
// to interested consumers. A nil publisher disables the events.
type EventPublisher interface {
	PublishSummaryInvalidated(ctx context.Context, month, reason string) error
}

// Deps bundles everything the API needs. Exporter and Events are optional;
// the corresponding endpoints degrade gracefully when they are nil.
type Deps struct {
	Loader       *summary.Loader
	Orchestrator *jobs.Orchestrator
	Backend      backend.Backend
	Exporter     export.SummaryWriter
	Events       EventPublisher
	Logger       *log.Logger
}

type Server struct {
	http.Server
	deps         Deps
	logger       *log.Logger
	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(slog.LevelInfo)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		deps:        deps,
		logger:      deps.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(60),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/summary", s.withMiddleware(s.handleSummary))

	mux.HandleFunc("POST /api/categorization/start", s.withMiddleware(s.handleJobStart))
	mux.HandleFunc("GET /api/categorization/status", s.withMiddleware(s.handleJobStatus))
	mux.HandleFunc("POST /api/categorization/cancel", s.withMiddleware(s.handleJobCancel))
	mux.HandleFunc("POST /api/categorization/retry", s.withMiddleware(s.handleJobRetry))

	mux.HandleFunc("POST /api/budgets/{id}/default", s.withMiddleware(s.handleSetDefaultBudget))
	mux.HandleFunc("GET /api/budgets/months", s.withMiddleware(s.handleListBudgetMonths))
	mux.HandleFunc("POST /api/budgets/months", s.withMiddleware(s.handleAssignBudgetMonth))
	mux.HandleFunc("DELETE /api/budgets/months/{id}", s.withMiddleware(s.handleRemoveBudgetMonth))

	mux.HandleFunc("POST /api/export", s.withMiddleware(s.handleExport))

	return s
}

// withMiddleware adds request IDs, rate limiting on writes, security headers,
// and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		logger := s.logger.With(log.FieldRequestID, requestID)

		logger.Info("request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.Warn("rate limit exceeded", "client_ip", clientIP, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger.Info("request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// invalidate drops cached summaries after a write and announces the change
// when an event publisher is wired.
func (s *Server) invalidate(ctx context.Context, month, reason string) {
	s.deps.Loader.Invalidate()
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.PublishSummaryInvalidated(ctx, month, reason); err != nil {
		s.logger.Warn("failed to publish invalidation event",
			log.FieldMonth, month, log.FieldError, err)
	}
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Package rest serves a Lynx database over HTTP with the middleware
// chain recovery -> logging -> rate limit -> auth.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lynxdb/lynx/pkg/api/rest/middleware"
	"github.com/lynxdb/lynx/pkg/lynx"
	"github.com/lynxdb/lynx/pkg/observability"
)

// Config holds the REST server configuration.
type Config struct {
	Host      string
	Port      int
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
}

// Server is the HTTP front end of a database handle.
type Server struct {
	config     Config
	handler    *Handler
	logger     *observability.Logger
	metrics    *observability.Metrics
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a REST server around a database handle. extra lets
// the caller mount additional routes (e.g. /metrics) on the same mux.
func NewServer(config Config, db lynx.VectorDatabase, logger *observability.Logger, metrics *observability.Metrics, extra map[string]http.Handler) *Server {
	s := &Server{
		config:  config,
		handler: NewHandler(db, logger, metrics),
		logger:  logger,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("/healthz", s.handler.Health)
	s.mux.HandleFunc("/v1/vectors", s.routeVectors)
	s.mux.HandleFunc("/v1/vectors/batch", s.handler.BatchInsert)
	s.mux.HandleFunc("/v1/vectors/", s.handler.Vector)
	s.mux.HandleFunc("/v1/search", s.handler.Search)
	s.mux.HandleFunc("/v1/stats", s.handler.Stats)
	s.mux.HandleFunc("/v1/optimize", s.handler.Optimize)
	s.mux.HandleFunc("/v1/flush", s.handler.Flush)
	for path, h := range extra {
		s.mux.Handle(path, h)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.withMiddleware(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// routeVectors dispatches /v1/vectors by method.
func (s *Server) routeVectors(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.handler.Insert(w, r)
		return
	}
	writeError(w, "method not allowed", http.StatusMethodNotAllowed)
}

// withMiddleware wraps the mux in the standard chain, outermost first.
func (s *Server) withMiddleware(h http.Handler) http.Handler {
	authCfg := s.config.Auth
	if len(authCfg.PublicPaths) == 0 {
		authCfg.PublicPaths = []string{"/healthz", "/metrics"}
	}
	h = middleware.Auth(authCfg)(h)
	h = middleware.RateLimit(middleware.NewRateLimiter(s.config.RateLimit))(h)
	h = s.observeRequests(h)
	h = s.recover(h)
	return h
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// observeRequests records one Prometheus sample and one log line per
// request.
func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.logger == nil && s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
			s.metrics.RequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())
		}
		if s.logger != nil {
			s.logger.Debug("request", map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sw.status,
				"duration": elapsed,
			})
		}
	})
}

// recover converts handler panics into 500 responses.
func (s *Server) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Error("handler panic", map[string]interface{}{
						"path":  r.URL.Path,
						"panic": fmt.Sprintf("%v", rec),
					})
				}
				writeError(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	if s.logger != nil {
		s.logger.Info("rest server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

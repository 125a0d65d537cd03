// Package api serves the read-only HTTP surface: Prometheus metrics,
// orchestrator health and cache statistics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/lanscope/internal/cache"
	"github.com/anstrom/lanscope/internal/logging"
	"github.com/anstrom/lanscope/internal/metrics"
	"github.com/anstrom/lanscope/internal/monitor"
	"github.com/anstrom/lanscope/internal/scanning"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 10 * time.Second
	readTimeout           = 5 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
)

// ScanStatus is the orchestrator view the server reports on.
type ScanStatus interface {
	Status() scanning.Status
	CacheStats() cache.Stats
}

// CacheReporter exposes the statistics of a cache.
type CacheReporter interface {
	CacheStats() cache.Stats
}

// MonitorReporter exposes scheduled monitor counters.
type MonitorReporter interface {
	Stats() monitor.Stats
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	scans      ScanStatus
	identity   CacheReporter
	monitor    MonitorReporter
	metrics    *metrics.PrometheusMetrics
	logger     *logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithIdentityCache adds identity cache statistics to /cache/stats.
func WithIdentityCache(c CacheReporter) Option {
	return func(s *Server) { s.identity = c }
}

// WithMonitor adds monitor counters to /healthz.
func WithMonitor(m MonitorReporter) Option {
	return func(s *Server) { s.monitor = m }
}

// WithPrometheus sets the metrics exposed on /metrics.
func WithPrometheus(pm *metrics.PrometheusMetrics) Option {
	return func(s *Server) { s.metrics = pm }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server listening on addr.
func New(addr string, scans ScanStatus, opts ...Option) *Server {
	s := &Server{
		router: mux.NewRouter(),
		scans:  scans,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.GetGlobalMetrics()
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	s.logger = s.logger.WithComponent("api")

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Start serves until ctx is done or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("Starting HTTP server", "address", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the router wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)
	return recovery(s.loggingMiddleware(s.router))
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics",
		promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/cache/stats", s.cacheStatsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.indexHandler).Methods(http.MethodGet)
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Uptime    string          `json:"uptime"`
	Scanner   scanning.Status `json:"scanner"`
	Monitor   *monitor.Stats  `json:"monitor,omitempty"`

	// MetricsUpdated is the last system metrics refresh, unset before the first one.
	MetricsUpdated *time.Time `json:"metricsUpdated,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    s.metrics.GetUptime().Round(time.Second).String(),
		Scanner:   s.scans.Status(),
	}
	if updated := s.metrics.GetLastUpdate(); !updated.IsZero() {
		response.MetricsUpdated = &updated
	}
	if s.monitor != nil {
		stats := s.monitor.Stats()
		response.Monitor = &stats
	}
	s.WriteJSON(w, r, http.StatusOK, response)
}

// CacheStatsResponse is the /cache/stats body.
type CacheStatsResponse struct {
	Range    cache.Stats  `json:"range"`
	Identity *cache.Stats `json:"identity,omitempty"`
}

func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	response := CacheStatsResponse{Range: s.scans.CacheStats()}
	if s.identity != nil {
		stats := s.identity.CacheStats()
		response.Identity = &stats
	}
	s.WriteJSON(w, r, http.StatusOK, response)
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.WriteJSON(w, r, http.StatusOK, map[string]any{
		"service":   "lanscope",
		"endpoints": []string{"/metrics", "/healthz", "/cache/stats"},
	})
}

// WriteJSON writes a JSON response.
func (s *Server) WriteJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response",
			"error", err,
			"path", r.URL.Path,
			"method", r.Method)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// recoveryLogger adapts the structured logger to the gorilla recovery handler.
type recoveryLogger struct {
	logger *logging.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.logger.Error("Panic in HTTP handler", "error", fmt.Sprint(args...))
}

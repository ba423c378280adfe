// Package api provides the HTTP command and status surface of reconnode:
// scan lifecycle commands, progress, results, endpoints, statistics, history,
// announced services and SMB shares, a websocket progress stream and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihandlers "github.com/anstrom/reconnode/internal/api/handlers"
	"github.com/anstrom/reconnode/internal/api/middleware"
	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/metrics"
)

const (
	serverShutdownTimeout = 30 * time.Second
	idleTimeout           = 60 * time.Second
	maxHeaderBytes        = 1 << 20
)

// Options carries the collaborators of the server. Controller is required.
type Options struct {
	Controller apihandlers.ScanController
	// History is optional; it serves /history and the health check.
	History interface {
		apihandlers.CycleLister
		apihandlers.MigrationLister
		apihandlers.Pinger
	}
	Schedule apihandlers.JobLister
	// Services is optional; it serves /services.
	Services apihandlers.ServiceScanner
	// Gatherer backs /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
	// Metrics receives HTTP request metrics. Defaults to the in-process registry.
	Metrics          metrics.MetricsRegistry
	Version          string
	ProgressInterval time.Duration
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     config.APIConfig
	logger     *slog.Logger
	metrics    metrics.MetricsRegistry
	hub        *apihandlers.ProgressHub
	startTime  time.Time
}

// New creates a new API server instance.
func New(cfg config.APIConfig, opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("api server requires a scan controller")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	logger := logging.Default().WithComponent("api").Logger

	s := &Server{
		router:    mux.NewRouter(),
		config:    cfg,
		logger:    logger,
		metrics:   opts.Metrics,
		startTime: time.Now(),
	}
	s.hub = apihandlers.NewProgressHub(opts.Controller, opts.ProgressInterval, logger, opts.Metrics)
	s.hub.SetOriginCheck(originChecker(cfg.AllowedOrigins))

	s.setupRoutes(opts)
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	return s, nil
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(opts Options) {
	ctrl := opts.Controller
	scan := apihandlers.NewScanHandler(ctrl, s.logger, s.metrics)
	res := apihandlers.NewResultsHandler(ctrl, s.logger)

	var pinger apihandlers.Pinger
	var cycles apihandlers.CycleLister
	var migrations apihandlers.MigrationLister
	if opts.History != nil {
		pinger = opts.History
		cycles = opts.History
		migrations = opts.History
	}
	health := apihandlers.NewHealthHandler(ctrl, pinger, opts.Version, s.logger)
	hist := apihandlers.NewHistoryHandler(cycles, migrations, opts.Schedule, s.logger)
	svc := apihandlers.NewServicesHandler(ctrl, opts.Services, s.logger)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/liveness", health.Liveness).Methods(http.MethodGet)
	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api.HandleFunc("/scan/start", scan.StartScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/pause", scan.PauseScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/resume", scan.ResumeScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/progress", scan.GetProgress).Methods(http.MethodGet)
	api.HandleFunc("/scan/config", scan.GetConfig).Methods(http.MethodGet)

	api.HandleFunc("/stats", res.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/results", res.GetResults).Methods(http.MethodGet)
	api.HandleFunc("/results", res.ClearResults).Methods(http.MethodDelete)
	api.HandleFunc("/endpoints", res.GetEndpoints).Methods(http.MethodGet)
	api.HandleFunc("/endpoints/{host:[0-9]+}", res.GetEndpoint).Methods(http.MethodGet)

	api.HandleFunc("/history", hist.ListCycles).Methods(http.MethodGet)
	api.HandleFunc("/history/migrations", hist.ListMigrations).Methods(http.MethodGet)
	api.HandleFunc("/schedules", hist.ListSchedules).Methods(http.MethodGet)

	api.HandleFunc("/services", svc.GetServices).Methods(http.MethodGet)
	api.HandleFunc("/services/scan", svc.ScanServices).Methods(http.MethodPost)

	api.HandleFunc("/ws/progress", s.hub.ServeWS).Methods(http.MethodGet)

	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)
}

// setupMiddleware wraps the router. CORS sits outside the router so that
// preflight requests for unregistered OPTIONS routes are answered.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.SecurityHeaders())
	if s.config.RateLimitRequests > 0 && s.config.RateLimitWindow > 0 {
		limiter := middleware.NewRateLimiter(s.config.RateLimitRequests, s.config.RateLimitWindow)
		s.router.Use(middleware.RateLimit(limiter, s.logger))
	}
	if len(s.config.APIKeys) > 0 {
		s.router.Use(middleware.Authentication(s.config.APIKeys, s.logger))
	}
	s.router.Use(middleware.ContentType())

	s.handler = s.router
	if len(s.config.AllowedOrigins) > 0 {
		s.handler = handlers.CORS(
			handlers.AllowedOrigins(s.config.AllowedOrigins),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.APIKeyHeader}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		)(s.router)
	}
}

// index lists the main endpoints.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service": "reconnode",
		"version": "v1",
		"endpoints": map[string]string{
			"liveness":  "/api/v1/liveness",
			"progress":  "/api/v1/scan/progress",
			"endpoints": "/api/v1/endpoints",
			"stats":     "/api/v1/stats",
			"services":  "/api/v1/services",
			"metrics":   "/api/v1/metrics",
		},
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode API index response", "error", err)
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

// Hub returns the websocket progress hub.
func (s *Server) Hub() *apihandlers.ProgressHub {
	return s.hub
}

// originChecker mirrors the CORS origin list for websocket upgrades.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

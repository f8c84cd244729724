// Package api exposes devbay's control surface over local HTTP. The
// desktop frontend and the CLI both drive the daemon through these
// endpoints.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkarlsen/devbay/internal/config"
	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/metrics"
	"github.com/mkarlsen/devbay/internal/process"
	"github.com/mkarlsen/devbay/internal/scanner"
	"github.com/mkarlsen/devbay/internal/vpn"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 10 * time.Second
	readTimeout           = 10 * time.Second
	writeTimeout          = 60 * time.Second
	idleTimeout           = 60 * time.Second
)

// ScanCache provides the most recent scheduled scan, if any.
type ScanCache interface {
	LastScan() ([]*scanner.Report, time.Time)
}

// Server is the HTTP control server.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	config       *config.Config
	orchestrator *scanner.Orchestrator
	supervisor   *process.Supervisor
	vpnClient    *vpn.Client
	scanCache    ScanCache
	logger       *logging.Logger
	metrics      *metrics.PrometheusMetrics
	startTime    time.Time
}

// New creates the API server around the daemon's components. scanCache
// may be nil when no scheduler runs.
func New(cfg *config.Config, orchestrator *scanner.Orchestrator, supervisor *process.Supervisor, vpnClient *vpn.Client, scanCache ScanCache) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		config:       cfg,
		orchestrator: orchestrator,
		supervisor:   supervisor,
		vpnClient:    vpnClient,
		scanCache:    scanCache,
		logger:       logging.Default().WithComponent("api"),
		metrics:      metrics.GetGlobalMetrics(),
		startTime:    time.Now(),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.API.ListenAddr, strconv.Itoa(int(cfg.API.Port))),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Start serves until the context is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.httpServer.Addr)

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

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/scan/latest", s.handleScanLatest).Methods("GET")

	api.HandleFunc("/server/start", s.handleServerStart).Methods("POST")
	api.HandleFunc("/server/stop", s.handleServerStop).Methods("POST")
	api.HandleFunc("/server/status", s.handleServerStatus).Methods("GET")

	api.HandleFunc("/tunnel/start", s.handleTunnelStart).Methods("POST")
	api.HandleFunc("/tunnel/stop", s.handleTunnelStop).Methods("POST")
	api.HandleFunc("/tunnel/status", s.handleTunnelStatus).Methods("GET")
	api.HandleFunc("/tunnel/output", s.handleTunnelOutput).Methods("GET")

	api.HandleFunc("/remote/status", s.handleRemoteStatus).Methods("GET")
	api.HandleFunc("/environment", s.handleEnvironment).Methods("GET")
	api.HandleFunc("/ports/{port}", s.handlePortCheck).Methods("GET")

	s.router.Handle("/metrics", promhttp.HandlerFor(
		s.metrics.GetRegistry(),
		promhttp.HandlerOpts{},
	)).Methods("GET")
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(logWriter{s.logger}, next)
	})
}

// logWriter adapts the structured logger to gorilla's access log writer.
type logWriter struct {
	logger *logging.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Debug("HTTP request", "access_log", string(p))
	return len(p), nil
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panic",
					"panic", fmt.Sprintf("%v", rec),
					"path", r.URL.Path)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.IncrementHTTPRequests(r.Method, route, strconv.Itoa(recorder.status))
		s.metrics.RecordHTTPDuration(r.Method, route, time.Since(start))
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

// Hijack lets the websocket upgrade pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Router returns the configured router, used by tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/instrumentation"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":9090"

	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// StatusSource reports the engine state. *autoreply.Engine implements it.
type StatusSource interface {
	Status() autoreply.Status
}

// Config configures the observability server.
type Config struct {
	// Addr is the address to bind to (e.g. ":9090"). ":0" picks a free port.
	Addr string

	// Provider supplies the Prometheus handler. When nil or not exporting to
	// Prometheus, the default Prometheus registry is served.
	Provider *instrumentation.Provider

	// Status backs /status and the engine readiness check.
	Status StatusSource

	Logger *slog.Logger
}

// Server exposes /metrics, /healthz, /readyz and /status on a dedicated
// port while the daemon runs.
type Server struct {
	health *HealthChecker
	mux    *http.ServeMux
	logger *slog.Logger

	mu         sync.Mutex
	addr       string
	httpServer *http.Server
}

// New creates a Server. It does not listen until Start is called.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		health: NewHealthChecker(cfg.Status),
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   cfg.Addr,
	}

	var metrics http.Handler
	if cfg.Provider != nil {
		metrics = cfg.Provider.MetricsHandler()
	}
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s.mux.Handle("/metrics", metrics)
	s.health.RegisterHealthEndpoints(s.mux)
	s.mux.Handle("/status", statusHandler(cfg.Status))

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Health returns the health checker.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Start listens and serves until Shutdown. It blocks; run it in a goroutine.
// After a successful Shutdown it returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting observability server", slog.String("addr", ln.Addr().String()))
	return srv.Serve(ln)
}

// Shutdown gracefully stops the server. It is safe to call without Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.markShuttingDown()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down observability server")
	return srv.Shutdown(ctx)
}

// Addr returns the listen address; after Start it is the bound address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func statusHandler(source StatusSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if source == nil {
			http.Error(w, "engine not configured", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, source.Status())
	})
}

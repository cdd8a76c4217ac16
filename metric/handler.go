package metric

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/ackretry/errors"
	"github.com/c360/ackretry/health"
)

// Server serves Prometheus metrics and the aggregated health status
type Server struct {
	addr     string
	path     string
	server   *http.Server
	registry *MetricsRegistry
	monitor  *health.Monitor
	mu       sync.Mutex // guards server
}

// NewServer creates a metrics server. monitor may be nil, in which case
// /health always reports healthy.
func NewServer(addr, path string, registry *MetricsRegistry, monitor *health.Monitor) *Server {
	if path == "" {
		path = "/metrics"
	}
	if addr == "" {
		addr = ":9090"
	}

	return &Server{
		addr:     addr,
		path:     path,
		registry: registry,
		monitor:  monitor,
	}
}

// Handler builds the HTTP handler without starting a listener
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := health.NewHealthy("ackretry", "ok")
		if s.monitor != nil {
			status = s.monitor.AggregateHealth("ackretry")
		}

		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	return mux
}

// Run serves until ctx is done, then shuts the server down gracefully.
// It blocks.
func (s *Server) Run(ctx context.Context) error {
	srv, err := s.prepare()
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.serve(srv)
	}()

	select {
	case err := <-serveErr:
		s.clear(srv)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	s.clear(srv)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "Server", "Run", "shutdown HTTP server")
	}
	return <-serveErr
}

func (s *Server) prepare() (*http.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Run", "cannot start server that is already running")
	}
	if s.registry == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Server", "Run", "metrics registry not provided")
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server, nil
}

func (s *Server) serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapFatal(err, "Server", "serve",
			fmt.Sprintf("serve metrics on %s", s.addr))
	}
	return nil
}

func (s *Server) clear(srv *http.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == srv {
		s.server = nil
	}
}

// Address returns the metrics URL
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s%s", s.addr, s.path)
}

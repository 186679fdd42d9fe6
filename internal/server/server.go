// Package server exposes the cluster introspection HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scttfrdmn/barkuni/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "barkuni-api"

// PodNameLister is the cluster read the /pods endpoint needs
type PodNameLister interface {
	ListPodNames(ctx context.Context) ([]string, error)
}

type unavailableLister struct {
	err error
}

func (u unavailableLister) ListPodNames(context.Context) ([]string, error) {
	return nil, u.err
}

// Unavailable returns a lister that always fails with err. cluster-api uses it
// when cluster credentials could not be resolved at startup.
func Unavailable(err error) PodNameLister {
	return unavailableLister{err: err}
}

// Server serves the HTTP API
type Server struct {
	logger      *zap.Logger
	pods        PodNameLister
	config      config.ServerConfig
	registry    *prometheus.Registry
	podRequests *prometheus.CounterVec
}

// New creates a server with its own metrics registry
func New(logger *zap.Logger, pods PodNameLister, cfg config.ServerConfig) (*Server, error) {
	if pods == nil {
		return nil, errors.New("pod lister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	podRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barkuni",
			Name:      "pods_requests_total",
			Help:      "Requests to /pods by result",
		},
		[]string{"result"},
	)
	for _, c := range []prometheus.Collector{
		podRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register server metrics: %w", err)
		}
	}

	return &Server{
		logger:      logger,
		pods:        pods,
		config:      cfg,
		registry:    registry,
		podRequests: podRequests,
	}, nil
}

// Handler builds the router with middleware and tracing
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/pods", s.handlePods)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, serviceName)
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

// Package server exposes the output connector over HTTP, with a gRPC health
// listener on the side.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/corner4world/deepdetect/internal/bus"
	"github.com/corner4world/deepdetect/internal/config"
	"github.com/corner4world/deepdetect/internal/metrics"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/pkg/middleware"
	"github.com/corner4world/deepdetect/internal/simsearch"
)

// Config configures the listeners.
type Config struct {
	Host            string
	Port            int
	GRPCPort        int // 0 disables gRPC
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server owns the connector's services and listeners.
type Server struct {
	cfg     Config
	appCfg  *config.Config
	log     *logger.Logger
	handler *Handler
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	bus     bus.Bus
	engine  simsearch.Engine
	started time.Time

	grpcServer *grpc.Server
	health     *health.Server

	closers []io.Closer
}

// New builds the index engine, bus, history and metrics from appCfg.
func New(cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	s := &Server{cfg: cfg, appCfg: appCfg, log: log.WithComponent("server")}

	if appCfg.Observability.MetricsEnabled {
		s.metrics = metrics.New()
	}

	engine, engineCloser, err := simsearch.NewEngine(appCfg)
	if err != nil {
		return nil, fmt.Errorf("creating index engine: %w", err)
	}
	s.engine = engine
	s.closers = append(s.closers, engineCloser)

	history, err := metrics.NewHistory(appCfg.History)
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("creating measure history: %w", err)
	}
	s.closers = append(s.closers, history)

	b, err := bus.NewBus(appCfg.Bus, log)
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("creating event bus: %w", err)
	}
	if s.metrics != nil {
		b = bus.NewInstrumentedBus(b, s.metrics)
	}
	s.bus = b

	s.handler = NewHandler(HandlerDeps{
		Output:   appCfg.Output,
		Indexes:  engine,
		History:  history,
		Metrics:  s.metrics,
		Notifier: bus.NewNotifier(b, "dd-output", log),
		Log:      log,
	})

	if appCfg.Security.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(appCfg.Security.RateLimit),
			Burst:             appCfg.Security.Burst,
			CleanupInterval:   time.Minute,
		})
	}

	if cfg.GRPCPort > 0 {
		s.grpcServer, s.health = newGRPCServer()
	}
	return s, nil
}

// Handler returns the API handler.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Routes returns the full HTTP handler chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	if s.metrics != nil {
		path := s.appCfg.Observability.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metrics.Handler())
	}

	var h http.Handler = ResponseWrapperMiddleware(mux)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	if s.metrics != nil {
		h = metrics.HTTPMiddleware(s.metrics, h)
	}
	return middleware.RequestLogger(s.log)(h)
}

type healthResponse struct {
	Status        string        `json:"status"`
	Version       string        `json:"version"`
	IndexEngine   string        `json:"index_engine"`
	IndexError    string        `json:"index_error,omitempty"`
	Indexes       []IndexStatus `json:"indexes"`
	Bus           string        `json:"bus"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}

const healthPingTimeout = 2 * time.Second

// handleHealth reports degraded, with 503, when a remote index engine does
// not answer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		IndexEngine:   s.engine.Name(),
		Indexes:       s.handler.Indexes(),
		Bus:           s.appCfg.Bus.Type,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	status := http.StatusOK
	if p, ok := s.engine.(simsearch.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.IndexError = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// and releases every service.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	var grpcLis net.Listener
	if s.grpcServer != nil {
		lis, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.GRPCPort)))
		if err != nil {
			s.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcLis = lis
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("Starting HTTP server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		s.health.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			s.log.Info("Starting gRPC health server", "addr", grpcLis.Addr().String())
			if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("Shutting down server")
		if s.health != nil {
			s.health.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if s.grpcServer != nil {
			s.grpcServer.GracefulStop()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.Close()
	return err
}

// Close releases the services. Safe to call after Run.
func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.handler != nil {
		s.handler.Close()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.Warn("Failed to close bus", "error", err.Error())
		}
		s.bus = nil
	}
	s.closeAll()
	return nil
}

func (s *Server) closeAll() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("Failed to close service", "error", err.Error())
		}
	}
	s.closers = nil
}

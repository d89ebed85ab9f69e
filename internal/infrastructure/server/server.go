package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/GriffinCanCode/traceprop/internal/api/http"
	"github.com/GriffinCanCode/traceprop/internal/api/middleware"
	"github.com/GriffinCanCode/traceprop/internal/grpc/health"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/config"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/executor"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/logging"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/traceprop/internal/shared/id"
)

// ServiceName is reported by the gRPC health service and the tracer
const ServiceName = "traceprop"

// Server wraps the HTTP and gRPC servers and their dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server
	tracer     *tracing.Tracer
	pool       *executor.Pool
	health     *health.Client
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer creates a server with a logger built from cfg
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return New(cfg, logger)
}

// New creates a server that logs through logger
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.Wrap(nil)
	}

	logger.Info("Initializing traceprop server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("grpc", cfg.GRPC.Enabled),
		zap.String("trace_header", cfg.Trace.Header),
	)

	// Metrics first; the tracer and the pool report into them
	metrics := monitoring.NewMetrics()

	tracer := tracing.New(ServiceName, logger.Logger, tracing.Config{
		Header:     cfg.Trace.Header,
		LostPrefix: cfg.Trace.LostPrefix,
		Generator:  id.NewGenerator(),
		Observer:   metrics,
		BufferSize: cfg.Trace.BufferSize,
	})
	logger.Info("Trace propagation initialized",
		zap.String("header", tracer.Resolver().Header()),
		zap.String("lost_prefix", cfg.Trace.LostPrefix),
	)

	pool := executor.New(tracer, logger, executor.Config{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
		Observer:  metrics,
	})

	var downstream *httpclient.Client
	if cfg.Downstream.URL != "" {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.Header = cfg.Trace.Header
		clientCfg.Timeout = cfg.Downstream.Timeout()
		clientCfg.RetryMax = cfg.Downstream.RetryMax
		clientCfg.RequestsPerSecond = float64(cfg.Downstream.RequestsPerSec)
		downstream = httpclient.New(clientCfg, logger)
		logger.Info("Downstream relay configured", zap.String("url", cfg.Downstream.URL))
	}

	var healthClient *health.Client
	if target := grpcTarget(cfg); target != "" {
		client, err := health.New(target, tracer)
		if err != nil {
			logger.Warn("Failed to create gRPC health client", zap.String("addr", target), zap.Error(err))
		} else {
			healthClient = client
		}
	}

	s := &Server{
		tracer:  tracer,
		pool:    pool,
		health:  healthClient,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}

	s.router = s.newRouter(api.NewHandlers(api.Dependencies{
		Tracer:        tracer,
		Pool:          pool,
		Metrics:       metrics,
		Logger:        logger,
		Downstream:    downstream,
		DownstreamURL: cfg.Downstream.URL,
		Health:        healthClient,
	}))
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gzhttp.GzipHandler(s.router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.GRPC.Enabled {
		s.grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(
				tracing.GRPCUnaryInterceptor(tracer),
				monitoring.UnaryServerInterceptor(metrics),
			),
			grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
		)
		s.grpcHealth = grpchealth.NewServer()
		s.grpcHealth.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// grpcTarget picks the address /relay?via=grpc checks. Without an explicit
// target the server checks its own gRPC endpoint.
func grpcTarget(cfg *config.Config) string {
	if cfg.Downstream.GRPCAddr != "" {
		return cfg.Downstream.GRPCAddr
	}
	if cfg.GRPC.Enabled {
		return net.JoinHostPort("127.0.0.1", cfg.GRPC.Port)
	}
	return ""
}

func (s *Server) newRouter(handlers *api.Handlers) *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.TraceHeader = s.config.Trace.Header
	router.Use(middleware.CORS(corsCfg))

	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
			zap.Bool("global", s.config.RateLimit.Global),
		)
		rateCfg := middleware.DefaultRateLimitConfig()
		rateCfg.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		rateCfg.Burst = s.config.RateLimit.Burst
		if s.config.RateLimit.Global {
			router.Use(middleware.GlobalRateLimit(rateCfg))
		} else {
			router.Use(middleware.RateLimit(rateCfg))
		}
	}

	handlers.Register(router)
	return router
}

// Router returns the HTTP handler
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Tracer returns the server's tracer
func (s *Server) Tracer() *tracing.Tracer {
	return s.tracer
}

// Run listens on the configured addresses and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}

	var grpcLis net.Listener
	if s.grpcServer != nil {
		addr := net.JoinHostPort(s.config.Server.Host, s.config.GRPC.Port)
		grpcLis, err = net.Listen("tcp", addr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}

	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves on the given listeners until ctx is done or a server fails,
// then shuts down within the configured timeout. grpcLis may be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpLis.Addr().String()))
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.grpcServer != nil && grpcLis != nil {
		go func() {
			s.logger.Info("Starting gRPC server", zap.String("addr", grpcLis.Addr().String()))
			if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		s.logger.Error("Server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout())
	defer cancel()

	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops accepting requests, drains in-flight work and releases
// every dependency. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	var errs []error

	if s.grpcHealth != nil {
		s.grpcHealth.Shutdown()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}

	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpcServer.Stop()
			<-stopped
		}
	}

	// Queued tasks still run and log with their trace IDs
	s.pool.Close()

	if s.health != nil {
		if err := s.health.Close(); err != nil {
			s.logger.Error("Failed to close gRPC health client", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to close grpc health client: %w", err))
		}
	}

	s.tracer.Close()
	s.logger.Info("Server stopped")
	_ = s.logger.Sync()

	return errors.Join(errs...)
}

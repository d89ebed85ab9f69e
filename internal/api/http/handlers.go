package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/traceprop/internal/grpc/health"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/executor"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/logging"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

const version = "1.0.0"

// Dependencies holds what the handlers need. Downstream and Health are
// optional.
type Dependencies struct {
	Tracer        *tracing.Tracer
	Pool          *executor.Pool
	Metrics       *monitoring.Metrics
	Logger        *logging.Logger
	Downstream    *httpclient.Client
	DownstreamURL string
	Health        *health.Client
}

// Handlers contains all HTTP handlers
type Handlers struct {
	tracer        *tracing.Tracer
	pool          *executor.Pool
	metrics       *monitoring.Metrics
	logger        *logging.Logger
	downstream    *httpclient.Client
	downstreamURL string
	health        *health.Client
}

// NewHandlers creates a new handler set
func NewHandlers(deps Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Wrap(nil)
	}
	return &Handlers{
		tracer:        deps.Tracer,
		pool:          deps.Pool,
		metrics:       deps.Metrics,
		logger:        logger,
		downstream:    deps.Downstream,
		downstreamURL: deps.DownstreamURL,
		health:        deps.Health,
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/trace", h.Trace)
	r.POST("/tasks", h.SubmitTasks)
	r.GET("/relay", h.Relay)
	r.GET("/stats", h.Stats)
	r.GET("/metrics", h.Metrics)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "traceprop",
		"version": version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status": "healthy",
		"executor": gin.H{
			"workers": h.pool.Workers(),
			"pending": h.pool.Pending(),
			"dropped": h.pool.Dropped(),
		},
	}

	if h.downstream != nil {
		counts := h.downstream.BreakerCounts()
		resp["downstream"] = gin.H{
			"url":                  h.downstreamURL,
			"breaker":              h.downstream.BreakerState().String(),
			"consecutive_failures": counts.ConsecutiveFailures,
		}
	}
	if h.health != nil {
		resp["grpc_target"] = h.health.Addr()
	}

	c.JSON(http.StatusOK, resp)
}

// Trace reports the trace context bound to this request
func (h *Handlers) Trace(c *gin.Context) {
	ctx := c.Request.Context()

	c.JSON(http.StatusOK, gin.H{
		"trace_id": tracing.GetTraceID(ctx),
		"header":   h.tracer.Header(),
		"context":  tracing.Capture(ctx),
	})
}

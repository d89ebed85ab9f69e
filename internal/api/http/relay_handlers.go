package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

// Relay calls the configured downstream with the request's trace ID and
// reports the ID the downstream echoed back. ?via=grpc checks the gRPC
// health target instead of the HTTP downstream.
func (h *Handlers) Relay(c *gin.Context) {
	ctx := c.Request.Context()
	traceID := tracing.GetTraceID(ctx)

	if c.Query("via") == "grpc" {
		h.relayGRPC(c, traceID)
		return
	}

	if h.downstream == nil || h.downstreamURL == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "downstream not configured",
			"trace_id": traceID,
		})
		return
	}

	resp, err := h.downstream.Get(ctx, h.downstreamURL)
	if err != nil {
		c.Error(err)

		status := http.StatusBadGateway
		body := gin.H{"error": err.Error(), "trace_id": traceID}

		var statusErr *httpclient.StatusError
		switch {
		case errors.Is(err, httpclient.ErrUnavailable):
			status = http.StatusServiceUnavailable
		case errors.As(err, &statusErr):
			body["downstream_status"] = statusErr.StatusCode
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trace_id":          traceID,
		"via":               "http",
		"downstream_status": resp.StatusCode(),
		"echoed_trace_id":   resp.Header().Get(h.downstream.Header()),
	})
}

func (h *Handlers) relayGRPC(c *gin.Context, traceID string) {
	if h.health == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "grpc target not configured",
			"trace_id": traceID,
		})
		return
	}

	result, err := h.health.Check(c.Request.Context(), c.Query("service"))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "trace_id": traceID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trace_id":        traceID,
		"via":             "grpc",
		"status":          result.Status,
		"echoed_trace_id": result.TraceID,
	})
}

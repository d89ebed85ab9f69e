package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/monitoring"
)

// StatsResponse is the JSON view of the service counters
type StatsResponse struct {
	Timestamp time.Time           `json:"timestamp"`
	Traces    monitoring.Snapshot `json:"traces"`
	Executor  gin.H               `json:"executor"`
}

// Stats returns the counters as JSON
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Timestamp: time.Now(),
		Traces:    h.metrics.Snapshot(),
		Executor: gin.H{
			"workers": h.pool.Workers(),
			"pending": h.pool.Pending(),
			"dropped": h.pool.Dropped(),
		},
	})
}

// Metrics serves the Prometheus registry
func (h *Handlers) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

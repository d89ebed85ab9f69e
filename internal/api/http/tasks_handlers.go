package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/executor"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/traceprop/internal/shared/id"
)

// Task modes accepted by POST /tasks.
const (
	ModeAsync    = "async"
	ModeFanout   = "fanout"
	ModeDetached = "detached"
)

const maxTasks = 100

// TaskRequest is the body of POST /tasks
type TaskRequest struct {
	Count int    `json:"count"`
	Mode  string `json:"mode"`
	// DelayMs makes each task sleep before finishing.
	DelayMs int `json:"delay_ms"`
}

// SubmitTasks starts background work on behalf of the request.
//
// async queues tasks on the executor pool and returns immediately; fanout
// runs them in a group and returns the trace ID each one observed; detached
// queues tasks without capturing the caller's context. Every task of one
// call logs the same batch ID.
func (h *Handlers) SubmitTasks(c *gin.Context) {
	req := TaskRequest{Count: 1, Mode: ModeAsync}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}
	if req.Count <= 0 || req.Count > maxTasks {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 100"})
		return
	}
	if req.DelayMs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delay_ms must not be negative"})
		return
	}

	ctx := c.Request.Context()
	traceID := tracing.GetTraceID(ctx)
	batch := id.NewBatchID()
	delay := time.Duration(req.DelayMs) * time.Millisecond

	switch req.Mode {
	case ModeAsync:
		submitted, err := h.submit(ctx, batch, req.Count, delay, false)
		if err != nil {
			h.rejectTasks(c, traceID, batch, submitted, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"trace_id":  traceID,
			"batch_id":  batch,
			"mode":      req.Mode,
			"submitted": submitted,
		})

	case ModeDetached:
		submitted, err := h.submit(ctx, batch, req.Count, delay, true)
		if err != nil {
			h.rejectTasks(c, traceID, batch, submitted, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"trace_id":  traceID,
			"batch_id":  batch,
			"mode":      req.Mode,
			"submitted": submitted,
		})

	case ModeFanout:
		observed, err := h.fanout(ctx, batch, req.Count, delay)
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "trace_id": traceID})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"trace_id": traceID,
			"batch_id": batch,
			"mode":     req.Mode,
			"observed": observed,
		})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be one of async, fanout, detached"})
	}
}

func (h *Handlers) submit(ctx context.Context, batch string, count int, delay time.Duration, detached bool) (int, error) {
	for i := 0; i < count; i++ {
		task := h.task(batch, i, delay)

		var err error
		if detached {
			err = h.pool.Execute(h.tracer.WrapFunc(task, nil))
		} else {
			err = h.pool.Submit(ctx, task)
		}
		if err != nil {
			return i, err
		}
	}
	return count, nil
}

func (h *Handlers) fanout(ctx context.Context, batch string, count int, delay time.Duration) ([]string, error) {
	var mu sync.Mutex
	observed := make([]string, count)

	group := h.tracer.NewGroup(ctx)
	group.SetLimit(h.pool.Workers())
	for i := 0; i < count; i++ {
		task := h.task(batch, i, delay)
		group.Go(func(ctx context.Context) error {
			task(ctx)
			mu.Lock()
			observed[i] = tracing.GetTraceID(ctx)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return observed, nil
}

func (h *Handlers) task(batch string, index int, delay time.Duration) func(context.Context) {
	return func(ctx context.Context) {
		if delay > 0 {
			time.Sleep(delay)
		}
		h.logger.Ctx(ctx).Info("task executed",
			zap.String("batch_id", batch),
			zap.Int("index", index),
		)
	}
}

func (h *Handlers) rejectTasks(c *gin.Context, traceID, batch string, submitted int, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, executor.ErrQueueFull) || errors.Is(err, executor.ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	c.Error(err)
	c.JSON(status, gin.H{
		"error":     err.Error(),
		"trace_id":  traceID,
		"batch_id":  batch,
		"submitted": submitted,
	})
}

// Package executor provides a bounded worker pool whose tasks inherit the
// trace context of the goroutine that submitted them.
//
// Each worker binds one long-lived trace store to its context. Submit
// captures the submitter's store as a snapshot and wraps the task with the
// tracer, so the worker store holds the submitter's trace ID while the task
// runs and is cleared afterwards. A task submitted without any trace context
// runs under a fresh "new_"-prefixed trace ID.
//
// Example Usage:
//
//	pool := executor.New(tracer, logger, executor.Config{Workers: 4, QueueSize: 256})
//	defer pool.Close()
//
//	err := pool.Submit(c.Request.Context(), func(ctx context.Context) {
//		logger.Ctx(ctx).Info("processing")
//	})
package executor

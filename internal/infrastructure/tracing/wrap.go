package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task statuses reported to the Observer.
const (
	TaskOK    = "ok"
	TaskError = "error"
	TaskPanic = "panic"
)

// Wrap adapts task so that, wherever it eventually runs, it observes the
// snapshot captured by the submitter. The snapshot is copied here; later
// mutation of the submitter's store is never seen by the task.
//
// When the wrapped task runs:
//   - an empty snapshot is treated as context loss and a marked trace ID is generated
//   - otherwise the snapshot replaces the executing unit's context
//   - the task's result and error are returned unchanged and panics propagate
//   - the executing unit's store is cleared before control returns
//
// A nil tracer falls back to the default generator without logging.
func Wrap[T any](t *Tracer, task func(context.Context) (T, error), snapshot Snapshot) func(context.Context) (T, error) {
	snap := snapshot.Clone()

	return func(ctx context.Context) (result T, err error) {
		ctx, store := t.enter(ctx, snap)
		start := time.Now()
		panicked := true
		defer func() {
			status := TaskOK
			switch {
			case panicked:
				status = TaskPanic
			case err != nil:
				status = TaskError
			}
			t.exit(store, start, status, err)
		}()

		result, err = task(ctx)
		panicked = false
		return result, err
	}
}

// WrapErr is Wrap for tasks that only return an error.
func (t *Tracer) WrapErr(task func(context.Context) error, snapshot Snapshot) func(context.Context) error {
	wrapped := Wrap(t, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	}, snapshot)

	return func(ctx context.Context) error {
		_, err := wrapped(ctx)
		return err
	}
}

// WrapFunc is Wrap for tasks returning nothing.
func (t *Tracer) WrapFunc(task func(context.Context), snapshot Snapshot) func(context.Context) {
	wrapped := Wrap(t, func(ctx context.Context) (struct{}, error) {
		task(ctx)
		return struct{}{}, nil
	}, snapshot)

	return func(ctx context.Context) {
		_, _ = wrapped(ctx)
	}
}

// Go runs task on a new goroutine carrying a snapshot of ctx's store taken now.
// The goroutine's context is detached from ctx's cancellation.
func (t *Tracer) Go(ctx context.Context, task func(context.Context)) {
	wrapped := t.WrapFunc(task, Capture(ctx))
	detached := context.WithoutCancel(ctx)
	go wrapped(detached)
}

// enter binds the snapshot to the executing unit. Worker stores are reused;
// any other context gets a store of its own so the submitter's store is never
// written by the task.
func (t *Tracer) enter(ctx context.Context, snap Snapshot) (context.Context, *Store) {
	if ctx == nil {
		ctx = context.Background()
	}

	store := FromContext(ctx)
	if store == nil || !store.worker {
		ctx, store = NewContext(ctx)
	}

	if len(snap) == 0 {
		store.Clear()
		traceID := t.lostTraceID()
		store.Set(TraceIDKey, traceID)
		if t != nil {
			t.observer.TraceIDResolved(SourceContextLost)
			t.logger.Warn("task started without trace context",
				zap.String(TraceIDKey, traceID),
			)
		}
		return ctx, store
	}

	store.SetAll(snap)
	return ctx, store
}

func (t *Tracer) exit(store *Store, start time.Time, status string, err error) {
	traceID, _ := store.Get(TraceIDKey)
	store.Clear()

	if t == nil {
		return
	}
	t.observer.TaskFinished(status)
	t.Submit(Record{
		TraceID:   traceID,
		Name:      "task",
		Kind:      KindTask,
		StartTime: start,
		Duration:  time.Since(start),
		Error:     err,
	})
}

func (t *Tracer) lostTraceID() string {
	if t == nil {
		return NewResolver("", nil).NewLostTraceID(DefaultLostPrefix)
	}
	return t.resolver.NewLostTraceID(t.lostPrefix)
}

// Group runs wrapped tasks concurrently and waits for them, cancelling the
// group's context on the first error.
type Group struct {
	tracer *Tracer
	parent context.Context
	ctx    context.Context
	group  *errgroup.Group
}

// NewGroup creates a group whose tasks inherit the trace context of ctx.
func (t *Tracer) NewGroup(ctx context.Context) *Group {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{tracer: t, parent: ctx, ctx: gctx, group: g}
}

// SetLimit bounds the number of tasks running at once.
func (g *Group) SetLimit(n int) {
	g.group.SetLimit(n)
}

// Go captures the parent's store and starts task in the group.
func (g *Group) Go(task func(context.Context) error) {
	wrapped := g.tracer.WrapErr(task, Capture(g.parent))
	g.group.Go(func() error {
		return wrapped(g.ctx)
	})
}

// Wait blocks until all tasks finish and returns the first error.
func (g *Group) Wait() error {
	return g.group.Wait()
}

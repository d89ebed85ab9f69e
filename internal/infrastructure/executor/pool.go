package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/logging"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

var (
	// ErrClosed is returned when submitting to a closed pool.
	ErrClosed = errors.New("executor: pool closed")
	// ErrQueueFull is returned when the task queue has no room.
	ErrQueueFull = errors.New("executor: queue full")
)

// Observer receives pool events. monitoring.Metrics implements it.
type Observer interface {
	TaskDropped()
	SetQueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) TaskDropped()      {}
func (nopObserver) SetQueueDepth(int) {}

// Config controls pool sizing.
type Config struct {
	Workers   int
	QueueSize int
	Observer  Observer
}

// Pool runs tasks on a fixed set of workers. Every worker owns one trace
// store for its whole life; tasks submitted through Submit carry the
// submitter's trace context onto it.
type Pool struct {
	tracer   *tracing.Tracer
	logger   *logging.Logger
	observer Observer

	tasks   chan func(context.Context)
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	workers int
}

// New starts a pool.
func New(tracer *tracing.Tracer, logger *logging.Logger, cfg Config) *Pool {
	if logger == nil {
		logger = logging.Wrap(nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	p := &Pool{
		tracer:   tracer,
		logger:   logger,
		observer: cfg.Observer,
		tasks:    make(chan func(context.Context), cfg.QueueSize),
		workers:  cfg.Workers,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.run()
	}

	return p
}

// Submit captures the trace context bound to ctx and queues task with it.
// The task never sees ctx's cancellation; it receives the worker's context.
func (p *Pool) Submit(ctx context.Context, task func(context.Context)) error {
	return p.Execute(p.tracer.WrapFunc(task, tracing.Capture(ctx)))
}

// SubmitErr is Submit for tasks that report an error. The error is recorded
// as the task's outcome.
func (p *Pool) SubmitErr(ctx context.Context, task func(context.Context) error) error {
	wrapped := p.tracer.WrapErr(task, tracing.Capture(ctx))
	return p.Execute(func(ctx context.Context) {
		_ = wrapped(ctx)
	})
}

// Execute queues task as is. Callers that want trace propagation pass a
// task produced by tracing.Wrap.
func (p *Pool) Execute(task func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.tasks <- task:
		p.observer.SetQueueDepth(len(p.tasks))
		return nil
	default:
		p.dropped.Add(1)
		p.observer.TaskDropped()
		p.logger.Warn("executor queue full, dropping task", zap.Int("queue_size", cap(p.tasks)))
		return ErrQueueFull
	}
}

// Dropped returns the number of tasks rejected because the queue was full.
func (p *Pool) Dropped() uint64 {
	return p.dropped.Load()
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Close stops accepting tasks, runs everything already queued and waits for
// the workers to exit. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()

	ctx, _ := tracing.NewWorkerContext(context.Background())
	for task := range p.tasks {
		p.observer.SetQueueDepth(len(p.tasks))
		p.exec(ctx, task)
	}
}

// exec keeps the worker alive when a task panics. The task wrapper has
// already cleared the worker store by the time the panic reaches here.
func (p *Pool) exec(ctx context.Context, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r))
		}
	}()
	task(ctx)
}

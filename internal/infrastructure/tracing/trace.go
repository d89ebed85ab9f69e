package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/traceprop/internal/shared/id"
)

// DefaultLostPrefix marks trace IDs generated after context loss.
const DefaultLostPrefix = "new_"

// Kind classifies a completed unit of work.
type Kind string

const (
	KindHTTP Kind = "http"
	KindGRPC Kind = "grpc"
	KindTask Kind = "task"
)

// Record describes a completed unit of work
type Record struct {
	TraceID    string
	Name       string
	Kind       Kind
	Service    string
	StartTime  time.Time
	Duration   time.Duration
	StatusCode int
	Error      error
}

// Observer receives trace lifecycle events. monitoring.Metrics implements it.
type Observer interface {
	TraceIDResolved(source Source)
	TraceSetupFailed()
	TaskFinished(status string)
	RecordDropped()
}

type nopObserver struct{}

func (nopObserver) TraceIDResolved(Source) {}
func (nopObserver) TraceSetupFailed()      {}
func (nopObserver) TaskFinished(string)    {}
func (nopObserver) RecordDropped()         {}

// Config controls tracer behavior.
type Config struct {
	Header     string
	LostPrefix string
	Generator  *id.Generator
	Observer   Observer
	BufferSize int
}

// DefaultConfig returns the standard tracer configuration.
func DefaultConfig() Config {
	return Config{
		Header:     TraceIDKey,
		LostPrefix: DefaultLostPrefix,
		Generator:  id.Default(),
		BufferSize: 1000,
	}
}

// Tracer ties together ID resolution, interceptors and task wrapping
type Tracer struct {
	service    string
	logger     *zap.Logger
	resolver   *Resolver
	lostPrefix string
	observer   Observer

	records chan Record
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

// New creates a new tracer instance
func New(service string, logger *zap.Logger, cfg Config) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.LostPrefix == "" {
		cfg.LostPrefix = DefaultLostPrefix
	}

	t := &Tracer{
		service:    service,
		logger:     logger,
		resolver:   NewResolver(cfg.Header, cfg.Generator),
		lostPrefix: cfg.LostPrefix,
		observer:   cfg.Observer,
		records:    make(chan Record, cfg.BufferSize),
		done:       make(chan struct{}),
	}

	// Start record collector
	go t.collectRecords()

	return t
}

// Resolver returns the tracer's trace ID resolver. A nil tracer returns a
// resolver for TraceIDKey.
func (t *Tracer) Resolver() *Resolver {
	if t == nil {
		return NewResolver("", nil)
	}
	return t.resolver
}

// Header returns the propagation header name.
func (t *Tracer) Header() string {
	return t.Resolver().Header()
}

// LostPrefix returns the marker prepended to context-loss trace IDs.
func (t *Tracer) LostPrefix() string {
	return t.lostPrefix
}

// ResolveCurrent resolves the trace ID of the request bound to ctx.
func (t *Tracer) ResolveCurrent(ctx context.Context) (string, error) {
	return t.resolver.ResolveCurrent(ctx)
}

// setup runs the best-effort part of an interceptor. Errors and panics are
// converted to *TraceSetupError.
func (t *Tracer) setup(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TraceSetupError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &TraceSetupError{Op: op, Err: err}
	}
	return nil
}

func (t *Tracer) setupFailed(traceID string, err error) {
	t.observer.TraceSetupFailed()
	t.logger.Error("failed to set trace id",
		zap.String("service", t.service),
		zap.String(TraceIDKey, traceID),
		zap.Error(err),
	)
}

// collectRecords processes completed records
func (t *Tracer) collectRecords() {
	defer close(t.done)
	for r := range t.records {
		t.processRecord(r)
	}
}

// processRecord logs a completed unit of work
func (t *Tracer) processRecord(r Record) {
	fields := []zap.Field{
		zap.String(TraceIDKey, r.TraceID),
		zap.String("operation", r.Name),
		zap.String("kind", string(r.Kind)),
		zap.Duration("duration", r.Duration),
		zap.String("service", t.service),
	}

	if r.StatusCode != 0 {
		fields = append(fields, zap.Int("status", r.StatusCode))
	}

	if r.Error != nil {
		fields = append(fields, zap.Error(r.Error))
		t.logger.Error("work completed with error", fields...)
	} else {
		t.logger.Info("work completed", fields...)
	}
}

// Submit hands a completed record to the collector without blocking.
func (t *Tracer) Submit(r Record) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}

	r.Service = t.service
	select {
	case t.records <- r:
	default:
		t.observer.RecordDropped()
		t.logger.Warn("record buffer full, dropping record",
			zap.String(TraceIDKey, r.TraceID),
			zap.String("operation", r.Name),
		)
	}
}

// Close stops the collector after draining buffered records.
func (t *Tracer) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.records)
	}
	t.mu.Unlock()

	<-t.done
}

package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

const namespace = "traceprop"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	// Trace metrics
	TraceIDs       *prometheus.CounterVec
	SetupErrors    prometheus.Counter
	Tasks          *prometheus.CounterVec
	TasksDropped   prometheus.Counter
	RecordsDropped prometheus.Counter
	QueueDepth     prometheus.Gauge

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests  int64            `json:"total_requests"`
	TotalErrors    int64            `json:"total_errors"`
	TraceIDs       map[string]int64 `json:"trace_ids"`
	SetupErrors    int64            `json:"setup_errors"`
	Tasks          map[string]int64 `json:"tasks"`
	TasksDropped   int64            `json:"tasks_dropped"`
	RecordsDropped int64            `json:"records_dropped"`
	UptimeSeconds  float64          `json:"uptime_seconds"`
}

var _ tracing.Observer = (*Metrics)(nil)

// NewMetrics creates a metrics collector backed by its own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		snapshot: Snapshot{
			TraceIDs: make(map[string]int64),
			Tasks:    make(map[string]int64),
		},

		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// gRPC metrics
		GRPCCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_calls_total",
				Help:      "Total number of gRPC calls",
			},
			[]string{"method", "code"},
		),
		GRPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "grpc_duration_seconds",
				Help:      "gRPC call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),

		// Trace metrics
		TraceIDs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trace_ids_total",
				Help:      "Trace IDs assigned, by source",
			},
			[]string{"source"},
		),
		SetupErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trace_setup_errors_total",
				Help:      "Requests whose trace setup failed",
			},
		),
		Tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Wrapped tasks finished, by status",
			},
			[]string{"status"},
		),
		TasksDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_dropped_total",
				Help:      "Tasks rejected because the executor queue was full",
			},
		),
		RecordsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_dropped_total",
				Help:      "Completed-work records dropped because the buffer was full",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executor_queue_depth",
				Help:      "Tasks waiting in the executor queue",
			},
		),
	}

	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	m.registry.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.RequestSize, m.ResponseSize,
		m.GRPCCalls, m.GRPCDuration,
		m.TraceIDs, m.SetupErrors, m.Tasks, m.TasksDropped, m.RecordsDropped, m.QueueDepth,
		uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, code string, duration time.Duration) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// TraceIDResolved counts a trace ID by where it came from
func (m *Metrics) TraceIDResolved(source tracing.Source) {
	m.TraceIDs.WithLabelValues(string(source)).Inc()
	m.mu.Lock()
	m.snapshot.TraceIDs[string(source)]++
	m.mu.Unlock()
}

// TraceSetupFailed counts a failed trace setup
func (m *Metrics) TraceSetupFailed() {
	m.SetupErrors.Inc()
	m.mu.Lock()
	m.snapshot.SetupErrors++
	m.mu.Unlock()
}

// TaskFinished counts a wrapped task by outcome
func (m *Metrics) TaskFinished(status string) {
	m.Tasks.WithLabelValues(status).Inc()
	m.mu.Lock()
	m.snapshot.Tasks[status]++
	m.mu.Unlock()
}

// RecordDropped counts a completed-work record lost to a full buffer
func (m *Metrics) RecordDropped() {
	m.RecordsDropped.Inc()
	m.mu.Lock()
	m.snapshot.RecordsDropped++
	m.mu.Unlock()
}

// TaskDropped counts a task rejected by the executor
func (m *Metrics) TaskDropped() {
	m.TasksDropped.Inc()
	m.mu.Lock()
	m.snapshot.TasksDropped++
	m.mu.Unlock()
}

// SetQueueDepth reports the executor backlog
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.TraceIDs = make(map[string]int64, len(m.snapshot.TraceIDs))
	for k, v := range m.snapshot.TraceIDs {
		s.TraceIDs[k] = v
	}
	s.Tasks = make(map[string]int64, len(m.snapshot.Tasks))
	for k, v := range m.snapshot.Tasks {
		s.Tasks[k] = v
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

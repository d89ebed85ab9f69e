package http

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/traceprop/internal/grpc/health"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/executor"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/logging"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/traceprop/internal/shared/id"
)

type fixture struct {
	router  *gin.Engine
	tracer  *tracing.Tracer
	pool    *executor.Pool
	metrics *monitoring.Metrics
	logger  *logging.Logger
	logs    *observer.ObservedLogs
}

type option func(*fixture, *Dependencies)

func withPool(workers, queue int) option {
	return func(f *fixture, deps *Dependencies) {
		f.pool = executor.New(f.tracer, f.logger, executor.Config{
			Workers:   workers,
			QueueSize: queue,
			Observer:  f.metrics,
		})
		deps.Pool = f.pool
	}
}

func withDownstream(url string) option {
	return func(f *fixture, deps *Dependencies) {
		cfg := httpclient.DefaultConfig()
		cfg.RetryMax = 0
		cfg.Timeout = 5 * time.Second
		deps.Downstream = httpclient.New(cfg, f.logger)
		deps.DownstreamURL = url
	}
}

func withHealth(client *health.Client) option {
	return func(_ *fixture, deps *Dependencies) {
		deps.Health = client
	}
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	f := &fixture{
		metrics: monitoring.NewMetrics(),
		logger:  logging.Wrap(zap.New(core)),
		logs:    logs,
	}

	cfg := tracing.DefaultConfig()
	cfg.Observer = f.metrics
	f.tracer = tracing.New("http-test", zap.NewNop(), cfg)

	deps := Dependencies{
		Tracer:  f.tracer,
		Metrics: f.metrics,
		Logger:  f.logger,
	}
	for _, opt := range opts {
		opt(f, &deps)
	}
	if f.pool == nil {
		withPool(2, 16)(f, &deps)
	}
	t.Cleanup(func() {
		f.pool.Close()
		f.tracer.Close()
	})

	f.router = gin.New()
	f.router.Use(tracing.HTTPMiddleware(f.tracer))
	NewHandlers(deps).Register(f.router)

	return f
}

func (f *fixture) do(method, path, traceID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if traceID != "" {
		req.Header.Set(tracing.TraceIDKey, traceID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (f *fixture) taskTraceIDs() []string {
	var ids []string
	for _, entry := range f.logs.FilterMessage("task executed").All() {
		traceID, _ := entry.ContextMap()[tracing.TraceIDKey].(string)
		ids = append(ids, traceID)
	}
	return ids
}

func TestRoot(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "traceprop", body["service"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t, withDownstream("http://127.0.0.1:1"))

	w := f.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	executorInfo := body["executor"].(map[string]any)
	assert.Equal(t, float64(2), executorInfo["workers"])
	downstream := body["downstream"].(map[string]any)
	assert.Equal(t, "closed", downstream["breaker"])
}

func TestTraceEchoesIncomingID(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/trace", "abc123", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Header().Get(tracing.TraceIDKey))
	body := decode(t, w)
	assert.Equal(t, "abc123", body["trace_id"])
	assert.Equal(t, tracing.TraceIDKey, body["header"])
	assert.Equal(t, map[string]any{tracing.TraceIDKey: "abc123"}, body["context"])
}

func TestTraceGeneratesID(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/trace", "", "")

	body := decode(t, w)
	traceID := body["trace_id"].(string)
	assert.True(t, id.IsHex(traceID))
	assert.Equal(t, traceID, w.Header().Get(tracing.TraceIDKey))
}

func TestSubmitTasksAsync(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/tasks", "abc123", `{"count":3}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "abc123", body["trace_id"])
	assert.Equal(t, float64(3), body["submitted"])
	batch, _ := body["batch_id"].(string)
	assert.True(t, id.IsULID(batch), "got %q", batch)

	f.pool.Close()

	assert.Equal(t, []string{"abc123", "abc123", "abc123"}, f.taskTraceIDs())
	for _, entry := range f.logs.FilterMessage("task executed").All() {
		assert.Equal(t, batch, entry.ContextMap()["batch_id"])
	}
}

func TestSubmitTasksDefaultsToOneAsyncTask(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/tasks", "abc123", "")

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, ModeAsync, body["mode"])
	assert.Equal(t, float64(1), body["submitted"])
}

func TestSubmitTasksFanout(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/tasks", "fan-1", `{"count":4,"mode":"fanout"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{"fan-1", "fan-1", "fan-1", "fan-1"}, body["observed"])
	assert.Len(t, f.taskTraceIDs(), 4)
}

func TestSubmitTasksDetachedLosesContext(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/tasks", "abc123", `{"count":2,"mode":"detached"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	f.pool.Close()

	ids := f.taskTraceIDs()
	require.Len(t, ids, 2)
	for _, traceID := range ids {
		assert.True(t, strings.HasPrefix(traceID, tracing.DefaultLostPrefix), "got %q", traceID)
		assert.NotEqual(t, "abc123", traceID)
	}
	assert.Equal(t, int64(2), f.metrics.Snapshot().TraceIDs[string(tracing.SourceContextLost)])
}

func TestSubmitTasksInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero count", body: `{"count":0}`},
		{name: "too many", body: `{"count":101}`},
		{name: "negative delay", body: `{"count":1,"delay_ms":-5}`},
		{name: "unknown mode", body: `{"count":1,"mode":"sideways"}`},
		{name: "malformed", body: `{"count":`},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/tasks", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSubmitTasksQueueFull(t *testing.T) {
	f := newFixture(t, withPool(1, 1))

	w := f.do(http.MethodPost, "/tasks", "abc123", `{"count":5,"delay_ms":200}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "abc123", body["trace_id"])
	assert.LessOrEqual(t, body["submitted"].(float64), float64(2))
	assert.Positive(t, f.pool.Dropped())
}

func TestSubmitTasksPoolClosed(t *testing.T) {
	f := newFixture(t)
	f.pool.Close()

	w := f.do(http.MethodPost, "/tasks", "", `{"count":1}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["submitted"])
}

func TestRelayNotConfigured(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/relay", "/relay?via=grpc"} {
		w := f.do(http.MethodGet, path, "abc123", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, "abc123", decode(t, w)["trace_id"], path)
	}
}

func TestRelayPropagatesTraceID(t *testing.T) {
	received := make(chan string, 1)
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(tracing.TraceIDKey)
		received <- traceID
		w.Header().Set(tracing.TraceIDKey, traceID)
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	f := newFixture(t, withDownstream(downstream.URL))

	w := f.do(http.MethodGet, "/relay", "relay-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "relay-1", <-received)
	body := decode(t, w)
	assert.Equal(t, "relay-1", body["echoed_trace_id"])
	assert.Equal(t, float64(http.StatusOK), body["downstream_status"])
	assert.Equal(t, "http", body["via"])
}

func TestRelayDownstreamError(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer downstream.Close()

	f := newFixture(t, withDownstream(downstream.URL))

	w := f.do(http.MethodGet, "/relay", "relay-2", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(http.StatusInternalServerError), body["downstream_status"])
	assert.Equal(t, "relay-2", body["trace_id"])
}

func TestRelayViaGRPC(t *testing.T) {
	serverTracer := tracing.New("grpc-test", zap.NewNop(), tracing.DefaultConfig())
	defer serverTracer.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(serverTracer)))
	healthpb.RegisterHealthServer(srv, grpchealth.NewServer())
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	client, err := health.New(lis.Addr().String(), serverTracer)
	require.NoError(t, err)
	defer client.Close()

	f := newFixture(t, withHealth(client))

	w := f.do(http.MethodGet, "/relay?via=grpc", "grpc-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "SERVING", body["status"])
	assert.Equal(t, "grpc-1", body["echoed_trace_id"])
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodGet, "/trace", "abc123", "")
	w := f.do(http.MethodGet, "/stats", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	traces := decode(t, w)["traces"].(map[string]any)
	ids := traces["trace_ids"].(map[string]any)
	assert.Equal(t, float64(1), ids[string(tracing.SourcePropagated)])
	assert.Equal(t, float64(1), ids[string(tracing.SourceGenerated)])
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodGet, "/trace", "abc123", "")
	w := f.do(http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `traceprop_trace_ids_total{source="propagated"} 1`)
}

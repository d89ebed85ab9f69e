package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/logging"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	cfg.RetryMax = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return cfg
}

// echoServer replies with the trace header it received.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Trace", r.Header.Get("traceId"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func traced(traceID string) context.Context {
	ctx, _ := tracing.NewContext(context.Background())
	tracing.SetTraceID(ctx, traceID)
	return ctx
}

func TestGetPropagatesTraceID(t *testing.T) {
	srv := echoServer(t)
	client := New(testConfig(srv.URL), nil)

	resp, err := client.Get(traced("abc123"), "/items")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "abc123", resp.Header().Get("X-Seen-Trace"))
}

func TestGetWithoutTraceContext(t *testing.T) {
	srv := echoServer(t)
	client := New(testConfig(srv.URL), nil)

	resp, err := client.Get(context.Background(), "/items")

	require.NoError(t, err)
	assert.Empty(t, resp.Header().Get("X-Seen-Trace"))
}

func TestExplicitHeaderWins(t *testing.T) {
	srv := echoServer(t)
	client := New(testConfig(srv.URL), nil)

	req, err := client.Request(traced("from-store"))
	require.NoError(t, err)
	resp, err := req.SetHeader("traceId", "explicit").Get("/items")

	require.NoError(t, err)
	assert.Equal(t, "explicit", resp.Header().Get("X-Seen-Trace"))
}

func TestCustomHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Trace", r.Header.Get("X-Trace"))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Header = "X-Trace"
	client := New(cfg, nil)

	resp, err := client.Get(traced("custom"), "/")

	require.NoError(t, err)
	assert.Equal(t, "X-Trace", client.Header())
	assert.Equal(t, "custom", resp.Header().Get("X-Seen-Trace"))
}

func TestServerErrorCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL), nil)

	_, err := client.Get(traced("abc"), "/")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, uint32(1), client.BreakerCounts().TotalFailures)
}

func TestRetriesCarryTraceID(t *testing.T) {
	var attempts atomic.Int32
	var lastSeen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastSeen.Store(r.Header.Get("traceId"))
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	core, logs := observer.New(zap.DebugLevel)
	cfg := testConfig(srv.URL)
	cfg.RetryMax = 3
	client := New(cfg, logging.Wrap(zap.New(core)))

	resp, err := client.Get(traced("retry-me"), "/")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, "retry-me", lastSeen.Load())

	retries := logs.FilterMessage("retrying downstream request").All()
	require.Len(t, retries, 2)
	assert.Equal(t, "retry-me", retries[0].ContextMap()[tracing.TraceIDKey])
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	client := New(testConfig("http://127.0.0.1:1"), nil)

	for i := 0; i < 10; i++ {
		client.Breaker.Execute(func() (interface{}, error) {
			return nil, errors.New("failure")
		})
	}
	require.Equal(t, resilience.StateOpen, client.BreakerState())

	_, err := client.Get(traced("abc"), "/")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = client.ExecuteWithBreaker(func() (*resty.Response, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRequestHonorsCancelledContext(t *testing.T) {
	client := New(testConfig("http://127.0.0.1:1"), nil)
	client.SetRateLimit(1)

	// Drain the single token so Wait has to block on ctx
	require.True(t, client.Limiter.Allow())

	ctx, cancel := context.WithCancel(traced("abc"))
	cancel()

	req, err := client.Request(ctx)
	assert.Error(t, err)
	assert.Nil(t, req)
}

func TestTimeoutComesFromConfig(t *testing.T) {
	client := New(testConfig(""), nil)

	assert.Equal(t, 2*time.Second, client.Resty.GetClient().Timeout)
}

func TestSetRateLimit(t *testing.T) {
	client := New(testConfig(""), nil)

	client.SetRateLimit(0.5)
	assert.Equal(t, 1, client.Limiter.Burst())

	client.SetRateLimit(0)
	assert.Equal(t, rate.Inf, client.Limiter.Limit())
	assert.True(t, client.Limiter.Allow())
}

func TestFailureIsLoggedWithTraceID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Timeout = 200 * time.Millisecond
	client := New(cfg, logging.Wrap(zap.New(core)))

	_, err := client.Get(traced("unreachable"), "/")

	require.Error(t, err)
	entries := logs.FilterMessage("downstream request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "unreachable", entries[0].ContextMap()[tracing.TraceIDKey])
}

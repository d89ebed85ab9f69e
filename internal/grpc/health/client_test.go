package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/traceprop/internal/shared/id"
)

func startServer(t *testing.T, tracer *tracing.Tracer) (string, *grpchealth.Server) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)))
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String(), hs
}

func newTracer(t *testing.T) *tracing.Tracer {
	t.Helper()
	tracer := tracing.New("health-test", zap.NewNop(), tracing.DefaultConfig())
	t.Cleanup(tracer.Close)
	return tracer
}

func TestCheckPropagatesTraceID(t *testing.T) {
	tracer := newTracer(t)
	addr, _ := startServer(t, tracer)

	client, err := New(addr, tracer)
	require.NoError(t, err)
	defer client.Close()

	ctx, _ := tracing.NewContext(context.Background())
	tracing.SetTraceID(ctx, "grpc-trace")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := client.Check(ctx, "")

	require.NoError(t, err)
	assert.Equal(t, "SERVING", result.Status)
	assert.Equal(t, "grpc-trace", result.TraceID)
	assert.Equal(t, addr, client.Addr())
}

func TestCheckWithNilTracer(t *testing.T) {
	addr, _ := startServer(t, newTracer(t))

	client, err := New(addr, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, _ := tracing.NewContext(context.Background())
	tracing.SetTraceID(ctx, "untraced-client")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := client.Check(ctx, "")

	require.NoError(t, err)
	assert.Equal(t, "untraced-client", result.TraceID)
}

func TestCheckWithoutTraceContext(t *testing.T) {
	tracer := newTracer(t)
	addr, _ := startServer(t, tracer)

	client, err := New(addr, tracer)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.Check(ctx, "")

	require.NoError(t, err)
	assert.True(t, id.IsHex(result.TraceID), "server should generate an id, got %q", result.TraceID)
}

func TestCheckUnknownService(t *testing.T) {
	tracer := newTracer(t)
	addr, _ := startServer(t, tracer)

	client, err := New(addr, tracer)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.Check(ctx, "missing.Service")

	assert.Error(t, err)
	assert.Equal(t, uint32(1), client.breaker.Counts().TotalFailures)
}

func TestCheckReportsNotServing(t *testing.T) {
	tracer := newTracer(t)
	addr, hs := startServer(t, tracer)
	hs.SetServingStatus("demo", healthpb.HealthCheckResponse_NOT_SERVING)

	client, err := New(addr, tracer)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.Check(ctx, "demo")

	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", result.Status)
}

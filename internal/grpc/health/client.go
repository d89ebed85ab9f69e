package health

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

// Result is the outcome of a health check.
type Result struct {
	Status string `json:"status"`
	// TraceID is the trace ID the remote side reported in its response header.
	TraceID string `json:"trace_id"`
}

// Client checks a gRPC health service, forwarding the caller's trace ID
type Client struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	addr    string
	key     string
	breaker *resilience.Breaker
}

// New creates a health client. The connection is established lazily. A nil
// tracer forwards trace IDs under the default metadata key.
func New(addr string, tracer *tracing.Tracer, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithChainUnaryInterceptor(tracing.GRPCClientInterceptor(tracer)),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}

	breaker := resilience.New("grpc-health", resilience.Settings{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
		addr:    addr,
		key:     tracer.Resolver().MetadataKey(),
		breaker: breaker,
	}, nil
}

// Addr returns the target address.
func (c *Client) Addr() string {
	return c.addr
}

// Check queries service ("" for the whole server).
func (c *Client) Check(ctx context.Context, service string) (*Result, error) {
	var header metadata.MD
	resp, err := resilience.Do(c.breaker, func() (*healthpb.HealthCheckResponse, error) {
		return c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service}, grpc.Header(&header))
	})
	if err != nil {
		return nil, fmt.Errorf("health check %s: %w", c.addr, err)
	}

	result := &Result{Status: resp.GetStatus().String()}
	if values := header.Get(c.key); len(values) > 0 {
		result.TraceID = values[0]
	}
	return result, nil
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

/*
Package tracing propagates a request trace ID through a service.

# Overview

Every inbound request gets a trace ID: the caller's, when it sends a traceId
header, or a freshly generated 32 character hex ID. The ID is stored in a
per-request Store bound to the request context, echoed back in the traceId
response header, and removed when the request completes.

Work handed to other goroutines carries a Snapshot of the submitter's Store.
The wrapped task replays the snapshot on the goroutine that runs it and clears
the store afterwards, so pooled workers never inherit a previous task's ID.
A task that runs with an empty snapshot gets a trace ID prefixed with "new_".

# Usage

	tracer := tracing.New("backend", logger, tracing.DefaultConfig())
	defer tracer.Close()

	// Gin
	router.Use(tracing.HTTPMiddleware(tracer))

	// net/http
	handler = tracing.Handler(tracer, handler)

	// gRPC
	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.StreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

	// Inside a handler
	traceID := tracing.GetTraceID(ctx)

	// Carry the context to another goroutine
	task := tracer.WrapErr(doWork, tracing.Capture(ctx))
	go task(context.Background())

	// Or let the tracer capture it
	tracer.Go(ctx, func(ctx context.Context) { ... })

# Trace Format

Propagation uses a single header, traceId by default. gRPC uses the lower-case
metadata key traceid.
*/
package tracing

// Package main is the entry point for the traceprop server.
//
// The server assigns every inbound HTTP request and gRPC call a trace ID,
// taken from the caller's traceId header when present and generated
// otherwise, and carries it into background tasks, outbound HTTP calls and
// outbound gRPC calls.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML or TOML file (-config) overlaying the environment
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -grpc-port 50051
//
//	# With a config file
//	./server -config traceprop.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

// Package health is a gRPC health-check client that carries the caller's
// trace ID in outgoing metadata and reports the trace ID the server echoed.
//
// Calls are guarded by a circuit breaker.
package health

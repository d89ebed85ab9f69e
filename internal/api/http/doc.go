// Package http exposes the trace propagation service over REST.
//
// Every route runs behind tracing.HTTPMiddleware, so handlers read the trace
// ID from the request context and hand work to the executor pool or the
// outbound clients without passing it explicitly.
//
// Routes:
//   - GET  /         service banner
//   - GET  /health   pool and downstream breaker state
//   - GET  /trace    trace context bound to the current request
//   - POST /tasks    background work that inherits the caller's trace ID
//   - GET  /relay    outbound HTTP or gRPC call carrying the trace ID
//   - GET  /stats    JSON counters
//   - GET  /metrics  Prometheus exposition
package http

// Package config provides 12-factor configuration management for the trace
// propagation service.
//
// Configuration is loaded from environment variables with sensible defaults.
// LoadFile overlays a YAML, TOML or JSON file on top of the environment.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown timeout)
//   - GRPC: gRPC server settings
//   - Logging: Log level and output format
//   - Trace: Trace header name, context-loss prefix, record buffer
//   - Workers: Executor pool size and queue depth
//   - RateLimit: Per-IP or global rate limiting configuration
//   - Downstream: Outbound HTTP client used for trace relay
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, GRPC_PORT, GRPC_ENABLED
//   - LOG_LEVEL, LOG_DEV
//   - TRACE_HEADER, TRACE_LOST_PREFIX, TRACE_BUFFER
//   - WORKERS, WORKER_QUEUE
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_GLOBAL
//   - DOWNSTREAM_URL, DOWNSTREAM_GRPC_ADDR, DOWNSTREAM_TIMEOUT, DOWNSTREAM_RETRIES, DOWNSTREAM_RPS
package config

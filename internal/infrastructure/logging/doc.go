// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Trace context:
//
// Ctx renders the trace store bound to a request or task context as fields,
// so every line written while handling a request carries its traceId.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Ctx(ctx).Error("Failed to connect", zap.Error(err))
package logging

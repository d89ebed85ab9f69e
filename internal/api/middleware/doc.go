// Package middleware provides HTTP middleware layered around the trace
// interceptor.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing that exposes the trace header
//   - RateLimit: Per-IP token bucket rate limiting with idle-client eviction
//   - GlobalRateLimit: One bucket shared by all clients
//
// Rejections carry the request's trace ID in the JSON body, so the
// tracing middleware must run first.
//
// Example Usage:
//
//	router.Use(tracing.HTTPMiddleware(tracer))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware

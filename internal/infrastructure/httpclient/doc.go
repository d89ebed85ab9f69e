// Package httpclient provides the outbound HTTP client used to call
// downstream services.
//
// Built on go-resty/resty over a hashicorp/go-retryablehttp transport, with
// a token-bucket rate limiter and a circuit breaker. Requests built from a
// context that carries a trace store are tagged with its trace ID, so the
// downstream service continues the same trace.
//
// Example Usage:
//
//	client := httpclient.New(httpclient.DefaultConfig(), logger)
//	resp, err := client.Get(c.Request.Context(), "http://inventory/items")
package httpclient

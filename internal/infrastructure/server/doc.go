// Package server assembles the trace propagation service.
//
// It wires configuration into the tracer, executor pool, outbound clients,
// metrics and the Gin router, and runs the HTTP and gRPC servers side by
// side. Both servers resolve or generate a trace ID for every inbound call
// and echo it back to the caller.
//
// Example Usage:
//
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package server

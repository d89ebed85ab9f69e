/*
Package monitoring provides metrics collection for the trace propagation
service.

# Overview

Metrics owns a private Prometheus registry, so several instances can live in
one process (tests build one per case). It implements tracing.Observer and
counts trace IDs by source, setup failures, finished tasks and dropped work.

# Usage

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("api", logger, tracing.Config{Observer: metrics})

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	grpc.NewServer(grpc.ChainUnaryInterceptor(monitoring.UnaryServerInterceptor(metrics)))
*/
package monitoring

package tracing

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware creates Gin middleware that assigns or forwards the trace ID.
// tracer must not be nil; the server interceptors below share that requirement.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, store := NewContext(c.Request.Context())
		ctx = WithRequest(ctx, c.Request)
		start := time.Now()

		var traceID string
		defer func() {
			var handlerErr error
			if last := c.Errors.Last(); last != nil {
				handlerErr = last
			}
			tracer.Submit(Record{
				TraceID:    traceID,
				Name:       c.Request.Method + " " + c.FullPath(),
				Kind:       KindHTTP,
				StartTime:  start,
				Duration:   time.Since(start),
				StatusCode: c.Writer.Status(),
				Error:      handlerErr,
			})
			store.Clear()
		}()

		err := tracer.setup("http", func() error {
			id, source := tracer.resolver.ResolveSource(c.Request.Header)
			traceID = id
			store.Set(TraceIDKey, id)
			c.Set(TraceIDKey, id)
			c.Header(tracer.Header(), id)
			tracer.observer.TraceIDResolved(source)
			return nil
		})
		if err != nil {
			tracer.setupFailed(traceID, err)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Handler wraps a net/http handler with the same trace ID policy as HTTPMiddleware.
func Handler(tracer *Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, store := NewContext(r.Context())
		ctx = WithRequest(ctx, r)
		start := time.Now()

		var traceID string
		defer func() {
			tracer.Submit(Record{
				TraceID:   traceID,
				Name:      r.Method + " " + r.URL.Path,
				Kind:      KindHTTP,
				StartTime: start,
				Duration:  time.Since(start),
			})
			store.Clear()
		}()

		err := tracer.setup("http", func() error {
			id, source := tracer.resolver.ResolveSource(r.Header)
			traceID = id
			store.Set(TraceIDKey, id)
			w.Header().Set(tracer.Header(), id)
			tracer.observer.TraceIDResolved(source)
			return nil
		})
		if err != nil {
			tracer.setupFailed(traceID, err)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GRPCUnaryInterceptor creates a gRPC unary interceptor for trace propagation
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		ctx, store := NewContext(ctx)
		start := time.Now()

		traceID := tracer.setupGRPC(ctx, store, grpc.SetHeader)
		defer func() {
			tracer.Submit(Record{
				TraceID:    traceID,
				Name:       info.FullMethod,
				Kind:       KindGRPC,
				StartTime:  start,
				Duration:   time.Since(start),
				StatusCode: int(status.Code(err)),
				Error:      err,
			})
			store.Clear()
		}()

		return handler(ctx, req)
	}
}

// GRPCStreamInterceptor creates a gRPC stream interceptor for trace propagation
func GRPCStreamInterceptor(tracer *Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		ctx, store := NewContext(ss.Context())
		start := time.Now()

		traceID := tracer.setupGRPC(ctx, store, func(_ context.Context, md metadata.MD) error {
			return ss.SetHeader(md)
		})
		defer func() {
			tracer.Submit(Record{
				TraceID:    traceID,
				Name:       info.FullMethod,
				Kind:       KindGRPC,
				StartTime:  start,
				Duration:   time.Since(start),
				StatusCode: int(status.Code(err)),
				Error:      err,
			})
			store.Clear()
		}()

		return handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func (t *Tracer) setupGRPC(ctx context.Context, store *Store, setHeader func(context.Context, metadata.MD) error) string {
	var traceID string
	err := t.setup("grpc", func() error {
		md, _ := metadata.FromIncomingContext(ctx)
		id, source := t.resolver.ResolveMetadata(md)
		traceID = id
		store.Set(TraceIDKey, id)
		t.observer.TraceIDResolved(source)
		return setHeader(ctx, metadata.Pairs(t.resolver.MetadataKey(), id))
	})
	if err != nil {
		t.setupFailed(traceID, err)
	}
	return traceID
}

// tracedServerStream wraps grpc.ServerStream with the traced context
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// GRPCClientInterceptor forwards the caller's trace ID in outgoing metadata.
// A nil tracer forwards under the default key.
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	key := tracer.Resolver().MetadataKey()
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if traceID := GetTraceID(ctx); traceID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, key, traceID)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

package tracing

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/GriffinCanCode/traceprop/internal/shared/id"
)

// Source describes where a trace ID came from.
type Source string

const (
	SourcePropagated  Source = "propagated"
	SourceGenerated   Source = "generated"
	SourceContextLost Source = "context_lost"
)

// Resolver picks the trace ID for an inbound request: the caller's ID when one
// is supplied, a freshly generated one otherwise.
type Resolver struct {
	header    string
	generator *id.Generator
}

// NewResolver creates a resolver reading the given header.
func NewResolver(header string, generator *id.Generator) *Resolver {
	if header == "" {
		header = TraceIDKey
	}
	if generator == nil {
		generator = id.Default()
	}
	return &Resolver{header: header, generator: generator}
}

// Header returns the HTTP header name used for propagation.
func (r *Resolver) Header() string {
	return r.header
}

// MetadataKey returns the gRPC metadata key used for propagation.
func (r *Resolver) MetadataKey() string {
	return strings.ToLower(r.header)
}

// Resolve returns the trace ID for a request carrying headers h.
func (r *Resolver) Resolve(h http.Header) string {
	traceID, _ := r.ResolveSource(h)
	return traceID
}

// ResolveSource is Resolve that also reports the ID's provenance.
func (r *Resolver) ResolveSource(h http.Header) (string, Source) {
	if traceID := h.Get(r.header); traceID != "" {
		return traceID, SourcePropagated
	}
	return r.generator.NewTraceID(), SourceGenerated
}

// ResolveMetadata applies the same policy to gRPC metadata.
func (r *Resolver) ResolveMetadata(md metadata.MD) (string, Source) {
	for _, v := range md.Get(r.MetadataKey()) {
		if v != "" {
			return v, SourcePropagated
		}
	}
	return r.generator.NewTraceID(), SourceGenerated
}

// ResolveCurrent resolves against the request bound to ctx by an interceptor,
// falling back to incoming gRPC metadata. It fails with ErrNoActiveRequest
// when called outside request scope.
func (r *Resolver) ResolveCurrent(ctx context.Context) (string, error) {
	if req, ok := RequestFromContext(ctx); ok {
		return r.Resolve(req.Header), nil
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		traceID, _ := r.ResolveMetadata(md)
		return traceID, nil
	}
	return "", ErrNoActiveRequest
}

// NewLostTraceID returns a generated ID marked with prefix, used when a task
// runs without any inherited context.
func (r *Resolver) NewLostTraceID(prefix string) string {
	return prefix + r.generator.NewTraceID()
}

// WithRequest binds the inbound request to ctx.
func WithRequest(ctx context.Context, req *http.Request) context.Context {
	return context.WithValue(ctx, requestKey, req)
}

// RequestFromContext returns the request bound by WithRequest.
func RequestFromContext(ctx context.Context) (*http.Request, bool) {
	if ctx == nil {
		return nil, false
	}
	req, ok := ctx.Value(requestKey).(*http.Request)
	return req, ok && req != nil
}

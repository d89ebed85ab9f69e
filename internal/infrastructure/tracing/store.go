package tracing

import (
	"context"
	"sort"
)

// TraceIDKey is the store key holding the current trace ID.
const TraceIDKey = "traceId"

// Snapshot is a point-in-time copy of a Store's entries.
type Snapshot map[string]string

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if len(s) == 0 {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// TraceID returns the trace ID recorded in the snapshot.
func (s Snapshot) TraceID() string {
	return s[TraceIDKey]
}

// Store holds the diagnostic context of a single execution unit: one inbound
// request or one worker goroutine.
//
// A Store is NOT safe for concurrent use. It must only be touched by the unit
// that owns it; other goroutines receive a Snapshot instead.
type Store struct {
	values map[string]string
	worker bool
}

// NewStore creates an empty store. The zero value is also ready to use.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Get returns the value for key.
func (s *Store) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// Set inserts or overwrites key.
func (s *Store) Set(key, value string) {
	if s == nil {
		return
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
}

// SetAll replaces the entire mapping with the snapshot's entries.
func (s *Store) SetAll(snapshot Snapshot) {
	if s == nil {
		return
	}
	s.values = make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		s.values[k] = v
	}
}

// Clear removes all entries. Calling it on an empty store is a no-op.
func (s *Store) Clear() {
	if s == nil || len(s.values) == 0 {
		return
	}
	clear(s.values)
}

// Snapshot copies the current entries. The copy is unaffected by later writes.
func (s *Store) Snapshot() Snapshot {
	if s == nil || len(s.values) == 0 {
		return nil
	}
	out := make(Snapshot, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Keys returns the entry keys in sorted order.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Context keys for store and request binding
type contextKey string

const (
	storeKey   contextKey = "trace_store"
	requestKey contextKey = "trace_request"
)

// NewContext binds a fresh store to ctx.
func NewContext(ctx context.Context) (context.Context, *Store) {
	store := NewStore()
	return context.WithValue(ctx, storeKey, store), store
}

// NewWorkerContext binds a store owned by a long-lived worker goroutine. Wrapped
// tasks executed with this context reuse the worker's store instead of binding
// their own, and leave it empty when they return.
func NewWorkerContext(ctx context.Context) (context.Context, *Store) {
	store := NewStore()
	store.worker = true
	return context.WithValue(ctx, storeKey, store), store
}

// FromContext returns the store bound to ctx, or nil.
func FromContext(ctx context.Context) *Store {
	if ctx == nil {
		return nil
	}
	store, _ := ctx.Value(storeKey).(*Store)
	return store
}

// Get reads key from the store bound to ctx.
func Get(ctx context.Context, key string) (string, bool) {
	return FromContext(ctx).Get(key)
}

// Set writes key into the store bound to ctx. Without a bound store it does nothing.
func Set(ctx context.Context, key, value string) {
	FromContext(ctx).Set(key, value)
}

// SetAll replaces the contents of the store bound to ctx.
func SetAll(ctx context.Context, snapshot Snapshot) {
	FromContext(ctx).SetAll(snapshot)
}

// Clear empties the store bound to ctx.
func Clear(ctx context.Context) {
	FromContext(ctx).Clear()
}

// Capture takes a snapshot of the store bound to ctx.
func Capture(ctx context.Context) Snapshot {
	return FromContext(ctx).Snapshot()
}

// GetTraceID retrieves the trace ID from the store bound to ctx.
func GetTraceID(ctx context.Context) string {
	id, _ := Get(ctx, TraceIDKey)
	return id
}

// SetTraceID stores the trace ID in the store bound to ctx.
func SetTraceID(ctx context.Context, traceID string) {
	Set(ctx, TraceIDKey, traceID)
}

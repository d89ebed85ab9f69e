package tracing

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/traceprop/internal/shared/id"
)

// recordingObserver counts tracer events.
type recordingObserver struct {
	mu           sync.Mutex
	sources      map[Source]int
	setupFailed  int
	taskStatuses map[string]int
	dropped      int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		sources:      make(map[Source]int),
		taskStatuses: make(map[string]int),
	}
}

func (o *recordingObserver) TraceIDResolved(source Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[source]++
}

func (o *recordingObserver) TraceSetupFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setupFailed++
}

func (o *recordingObserver) TaskFinished(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.taskStatuses[status]++
}

func (o *recordingObserver) RecordDropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func (o *recordingObserver) source(s Source) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sources[s]
}

func (o *recordingObserver) failures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setupFailed
}

func (o *recordingObserver) tasks(status string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.taskStatuses[status]
}

type testTracer struct {
	*Tracer
	observer *recordingObserver
	logs     *observer.ObservedLogs
}

func newTestTracer(t *testing.T, mutate ...func(*Config)) *testTracer {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	obs := newRecordingObserver()

	cfg := DefaultConfig()
	cfg.Observer = obs
	for _, fn := range mutate {
		fn(&cfg)
	}

	tracer := New("test", zap.New(core), cfg)
	t.Cleanup(tracer.Close)

	return &testTracer{Tracer: tracer, observer: obs, logs: logs}
}

// failingReader makes the id generator panic.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func withFailingGenerator(cfg *Config) {
	cfg.Generator = id.NewGeneratorWithEntropy(failingReader{})
}

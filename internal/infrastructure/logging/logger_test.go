package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "development", cfg: DevelopmentConfig()},
		{name: "no output paths", cfg: Config{Level: "warn"}},
		{name: "invalid level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger.Logger)
		})
	}
}

func TestFallbackConstructors(t *testing.T) {
	assert.NotNil(t, NewDefault().Logger)
	assert.NotNil(t, NewDevelopment().Logger)
	assert.NotNil(t, Wrap(nil).Logger)
}

func TestCtxRendersStore(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := Wrap(zap.New(core))

	ctx, _ := tracing.NewContext(context.Background())
	tracing.SetTraceID(ctx, "abc123")
	tracing.Set(ctx, "tenant", "acme")

	logger.Ctx(ctx).Info("handled")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Context, 2)
	assert.Equal(t, tracing.TraceIDKey, entries[0].Context[0].Key, "traceId should come first")
	assert.Equal(t, "abc123", entries[0].ContextMap()[tracing.TraceIDKey])
	assert.Equal(t, "acme", entries[0].ContextMap()["tenant"])
}

func TestCtxWithoutStore(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := Wrap(zap.New(core))

	logger.Ctx(context.Background()).Info("plain")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}

func TestCtxAfterClear(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := Wrap(zap.New(core))

	ctx, store := tracing.NewContext(context.Background())
	tracing.SetTraceID(ctx, "abc123")
	store.Clear()

	logger.Ctx(ctx).Info("after")

	assert.Empty(t, logs.All()[0].Context)
}

func TestWithTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := Wrap(zap.New(core))

	logger.WithTraceID("xyz").Info("tagged")

	assert.Equal(t, "xyz", logs.All()[0].ContextMap()[tracing.TraceIDKey])
}

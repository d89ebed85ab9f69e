package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

// Logger wraps zap.Logger with convenience methods.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// DefaultConfig returns production-ready logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stdout"},
	}
}

// DevelopmentConfig returns development logger configuration.
func DevelopmentConfig() Config {
	return Config{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stdout"},
	}
}

// New builds a logger. Production loggers write JSON without stack traces;
// development loggers write colored console lines.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	logger, err := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}.Build()
	if err != nil {
		return nil, err
	}
	return Wrap(logger), nil
}

// NewDefault creates a production logger, or a no-op logger if that fails.
func NewDefault() *Logger {
	return orNop(New(DefaultConfig()))
}

// NewDevelopment creates a console logger at debug level, or a no-op logger
// if that fails.
func NewDevelopment() *Logger {
	return orNop(New(DevelopmentConfig()))
}

func orNop(logger *Logger, err error) *Logger {
	if err != nil {
		return Wrap(nil)
	}
	return logger
}

// Wrap adapts an existing zap logger.
func Wrap(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{Logger: logger}
}

// Ctx returns a logger carrying every entry of the trace store bound to ctx.
// The trace ID is always emitted first.
func (l *Logger) Ctx(ctx context.Context) *zap.Logger {
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return l.Logger
	}
	return l.Logger.With(fields...)
}

// ContextFields renders the trace store bound to ctx as zap fields.
func ContextFields(ctx context.Context) []zap.Field {
	store := tracing.FromContext(ctx)
	if store.Len() == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, store.Len())
	if traceID, ok := store.Get(tracing.TraceIDKey); ok {
		fields = append(fields, zap.String(tracing.TraceIDKey, traceID))
	}
	for _, key := range store.Keys() {
		if key == tracing.TraceIDKey {
			continue
		}
		value, _ := store.Get(key)
		fields = append(fields, zap.String(key, value))
	}
	return fields
}

// WithTraceID returns a logger tagged with an explicit trace ID.
func (l *Logger) WithTraceID(traceID string) *zap.Logger {
	return l.Logger.With(zap.String(tracing.TraceIDKey, traceID))
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

// encoderConfig starts from zap's presets. Production keeps long key names
// and ISO8601 timestamps; development colors the level.
func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	return cfg
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnsupportedFormat is returned by LoadFile for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server" toml:"server"`
	GRPC       GRPCConfig       `json:"grpc" yaml:"grpc" toml:"grpc"`
	Logging    LogConfig        `json:"logging" yaml:"logging" toml:"logging"`
	Trace      TraceConfig      `json:"trace" yaml:"trace" toml:"trace"`
	Workers    WorkerConfig     `json:"workers" yaml:"workers" toml:"workers"`
	RateLimit  RateLimitConfig  `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"`
	Downstream DownstreamConfig `json:"downstream" yaml:"downstream" toml:"downstream"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string `envconfig:"PORT" default:"8000" json:"port" yaml:"port" toml:"port"`
	Host            string `envconfig:"HOST" default:"0.0.0.0" json:"host" yaml:"host" toml:"host"`
	ShutdownSeconds int    `envconfig:"SHUTDOWN_TIMEOUT" default:"10" json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// ShutdownTimeout returns the graceful shutdown budget.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownSeconds) * time.Second
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Port    string `envconfig:"GRPC_PORT" default:"50051" json:"port" yaml:"port" toml:"port"`
	Enabled bool   `envconfig:"GRPC_ENABLED" default:"true" json:"enabled" yaml:"enabled" toml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" json:"level" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" json:"development" yaml:"development" toml:"development"`
}

// TraceConfig holds trace propagation settings.
type TraceConfig struct {
	Header     string `envconfig:"TRACE_HEADER" default:"traceId" json:"header" yaml:"header" toml:"header"`
	LostPrefix string `envconfig:"TRACE_LOST_PREFIX" default:"new_" json:"lost_prefix" yaml:"lost_prefix" toml:"lost_prefix"`
	BufferSize int    `envconfig:"TRACE_BUFFER" default:"1000" json:"buffer_size" yaml:"buffer_size" toml:"buffer_size"`
}

// WorkerConfig holds executor pool configuration.
type WorkerConfig struct {
	Count     int `envconfig:"WORKERS" default:"4" json:"count" yaml:"count" toml:"count"`
	QueueSize int `envconfig:"WORKER_QUEUE" default:"256" json:"queue_size" yaml:"queue_size" toml:"queue_size"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" json:"rps" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" json:"burst" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" json:"enabled" yaml:"enabled" toml:"enabled"`
	// Global shares one bucket across all clients instead of one per IP
	Global bool `envconfig:"RATE_LIMIT_GLOBAL" default:"false" json:"global" yaml:"global" toml:"global"`
}

// DownstreamConfig holds the outbound HTTP client configuration.
type DownstreamConfig struct {
	URL            string `envconfig:"DOWNSTREAM_URL" json:"url" yaml:"url" toml:"url"`
	GRPCAddr       string `envconfig:"DOWNSTREAM_GRPC_ADDR" json:"grpc_addr" yaml:"grpc_addr" toml:"grpc_addr"`
	TimeoutSeconds int    `envconfig:"DOWNSTREAM_TIMEOUT" default:"10" json:"timeout" yaml:"timeout" toml:"timeout"`
	RetryMax       int    `envconfig:"DOWNSTREAM_RETRIES" default:"3" json:"retries" yaml:"retries" toml:"retries"`
	RequestsPerSec int    `envconfig:"DOWNSTREAM_RPS" default:"50" json:"rps" yaml:"rps" toml:"rps"`
}

// Timeout returns the per-request timeout.
func (d DownstreamConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads configuration from the environment and overlays the keys
// set in a YAML, TOML or JSON file. Keys absent from the file keep their
// environment or default value.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		err = sonic.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownSeconds: 10,
		},
		GRPC: GRPCConfig{
			Port:    "50051",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Trace: TraceConfig{
			Header:     "traceId",
			LostPrefix: "new_",
			BufferSize: 1000,
		},
		Workers: WorkerConfig{
			Count:     4,
			QueueSize: 256,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Downstream: DownstreamConfig{
			TimeoutSeconds: 10,
			RetryMax:       3,
			RequestsPerSec: 50,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.GRPC.Enabled && c.GRPC.Port == "" {
		errs = append(errs, errors.New("grpc port is required when grpc is enabled"))
	}
	if c.Trace.Header == "" {
		errs = append(errs, errors.New("trace header must not be empty"))
	}
	if c.Trace.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("trace buffer size must be positive, got %d", c.Trace.BufferSize))
	}
	if c.Workers.Count <= 0 {
		errs = append(errs, fmt.Errorf("worker count must be positive, got %d", c.Workers.Count))
	}
	if c.Workers.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("worker queue size must not be negative, got %d", c.Workers.QueueSize))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit rps and burst must be positive when enabled"))
	}
	if c.Downstream.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("downstream retries must not be negative, got %d", c.Downstream.RetryMax))
	}

	return errors.Join(errs...)
}

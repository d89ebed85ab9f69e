package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/traceprop/internal/infrastructure/logging"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/traceprop/internal/infrastructure/tracing"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("downstream unavailable: circuit breaker open")

// StatusError reports a downstream 5xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream %s returned %d", e.URL, e.StatusCode)
}

// Config defines client behavior.
type Config struct {
	BaseURL           string
	Header            string
	Timeout           time.Duration
	RetryMax          int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// DefaultConfig returns production client settings.
func DefaultConfig() Config {
	return Config{
		Header:       tracing.TraceIDKey,
		Timeout:      30 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 30 * time.Second,
		UserAgent:    "traceprop/1.0",
	}
}

// Client wraps resty with trace propagation, rate limiting and a circuit breaker
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker

	mu     sync.RWMutex // Protects Limiter
	header string
	logger *logging.Logger
}

// New creates an outbound client. Every request made with a context that
// carries a trace store gets that store's trace ID in cfg.Header.
func New(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Wrap(nil)
	}
	if cfg.Header == "" {
		cfg.Header = tracing.TraceIDKey
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt == 0 {
			return
		}
		logger.Warn("retrying downstream request",
			zap.String(tracing.TraceIDKey, req.Header.Get(cfg.Header)),
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt),
		)
	}

	restyClient := resty.New()
	restyClient.
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetTransport(retryClient.StandardClient().Transport)
	if cfg.BaseURL != "" {
		restyClient.SetBaseURL(cfg.BaseURL)
	}

	breaker := resilience.New("downstream", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	c := &Client{
		Resty:   restyClient,
		Limiter: rate.NewLimiter(rate.Inf, 0),
		Breaker: breaker,
		header:  cfg.Header,
		logger:  logger,
	}
	c.SetRateLimit(cfg.RequestsPerSecond)
	restyClient.OnBeforeRequest(c.injectTraceID)

	return c
}

// injectTraceID copies the caller's trace ID onto the outbound request.
// An explicitly set header wins.
func (c *Client) injectTraceID(_ *resty.Client, r *resty.Request) error {
	if r.Header.Get(c.header) != "" {
		return nil
	}
	if traceID := tracing.GetTraceID(r.Context()); traceID != "" {
		r.SetHeader(c.header, traceID)
	}
	return nil
}

// Header returns the propagation header name.
func (c *Client) Header() string {
	return c.header
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Request creates new request with rate limiting and circuit breaker protection
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, ErrUnavailable
	}

	c.mu.RLock()
	limiter := c.Limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// ExecuteWithBreaker executes an HTTP operation with circuit breaker protection.
// Transport errors and 5xx responses count as failures.
func (c *Client) ExecuteWithBreaker(fn func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := resilience.Do(c.Breaker, func() (*resty.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp != nil && resp.StatusCode() >= http.StatusInternalServerError {
			return resp, &StatusError{StatusCode: resp.StatusCode(), URL: resp.Request.URL}
		}
		return resp, nil
	})

	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get performs a protected GET carrying the trace ID bound to ctx.
func (c *Client) Get(ctx context.Context, url string) (*resty.Response, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.ExecuteWithBreaker(func() (*resty.Response, error) {
		return req.Get(url)
	})
	if err != nil {
		c.logger.Ctx(ctx).Warn("downstream request failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

// BreakerCounts returns circuit breaker statistics
func (c *Client) BreakerCounts() resilience.Counts {
	return c.Breaker.Counts()
}

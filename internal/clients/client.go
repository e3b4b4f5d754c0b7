package clients

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edgexpo/voicegateway/internal/metrics"
)

const defaultHealthTimeout = 5 * time.Second

// ServiceEndpoint describes one backend capability. Clients copy it at
// construction and never expose a setter. A zero MaxRetries selects the
// capability's default; a negative one disables operation-level retry.
type ServiceEndpoint struct {
	Name       string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type clientOptions struct {
	session       *Session
	sessionConfig *SessionConfig
	logger        *slog.Logger
	backoff       time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	onRetry       func(state RetryState)
	healthTimeout time.Duration
	cacheDir      string
}

// Option configures a service client
type Option func(*clientOptions)

// WithSession makes the client share an existing session
func WithSession(session *Session) Option {
	return func(o *clientOptions) {
		o.session = session
	}
}

// WithSessionConfig sets the pool and transport retry settings of the client's own session
func WithSessionConfig(cfg SessionConfig) Option {
	return func(o *clientOptions) {
		o.sessionConfig = &cfg
	}
}

// WithLogger sets the client logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithBackoffFactor overrides the operation-level backoff factor
func WithBackoffFactor(d time.Duration) Option {
	return func(o *clientOptions) {
		o.backoff = d
	}
}

// WithRetrySleep replaces the wait between operation-level retries
func WithRetrySleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *clientOptions) {
		o.sleep = sleep
	}
}

// WithRetryObserver is called before every operation-level retry
func WithRetryObserver(fn func(state RetryState)) Option {
	return func(o *clientOptions) {
		o.onRetry = fn
	}
}

// WithHealthTimeout overrides the 5s health probe timeout
func WithHealthTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.healthTimeout = d
	}
}

// WithCacheDir sets where synthesized audio is written
func WithCacheDir(dir string) Option {
	return func(o *clientOptions) {
		o.cacheDir = dir
	}
}

// baseClient carries what every service client shares
type baseClient struct {
	endpoint      ServiceEndpoint
	session       *Session
	logger        *slog.Logger
	retry         RetryPolicy
	healthTimeout time.Duration
}

func newBaseClient(endpoint ServiceEndpoint, defaultTimeout, defaultBackoff time.Duration, defaultRetries int, opts []Option) (baseClient, clientOptions) {
	o := clientOptions{
		logger:        slog.Default(),
		backoff:       defaultBackoff,
		healthTimeout: defaultHealthTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	endpoint.BaseURL = strings.TrimRight(endpoint.BaseURL, "/")
	if endpoint.Timeout <= 0 {
		endpoint.Timeout = defaultTimeout
	}
	switch {
	case endpoint.MaxRetries == 0:
		endpoint.MaxRetries = defaultRetries
	case endpoint.MaxRetries < 0:
		endpoint.MaxRetries = 0
	}

	session := o.session
	if session == nil {
		cfg := DefaultSessionConfig()
		if o.sessionConfig != nil {
			cfg = *o.sessionConfig
		}
		cfg.Timeout = endpoint.Timeout
		session = NewSession(endpoint.Name, cfg, WithSessionLogger(o.logger))
	}

	return baseClient{
		endpoint: endpoint,
		session:  session,
		logger:   o.logger,
		retry: RetryPolicy{
			MaxRetries:    endpoint.MaxRetries,
			BackoffFactor: o.backoff,
			Sleep:         o.sleep,
			OnRetry:       o.onRetry,
		},
		healthTimeout: o.healthTimeout,
	}, o
}

// RetryPolicy returns the operation-level retry settings
func (c *baseClient) RetryPolicy() RetryPolicy {
	return c.retry
}

// Endpoint returns a copy of the client's endpoint
func (c *baseClient) Endpoint() ServiceEndpoint {
	return c.endpoint
}

// Name returns the capability name
func (c *baseClient) Name() string {
	return c.endpoint.Name
}

// Close releases the client's pooled connections
func (c *baseClient) Close() {
	c.session.Close()
}

func (c *baseClient) url(path string) string {
	return c.endpoint.BaseURL + path
}

// withRetry runs op under the client's operation-level retry policy
func withRetry[T any](ctx context.Context, c *baseClient, operation string, op func(context.Context) (T, error)) (T, error) {
	policy := c.retry
	observer := policy.OnRetry
	policy.OnRetry = func(state RetryState) {
		metrics.RecordRetry(c.endpoint.Name, metrics.LayerOperation)
		c.logger.Warn("retrying operation",
			"service", c.endpoint.Name,
			"operation", operation,
			"attempt", state.Attempt,
			"error", state.LastErr,
		)
		if observer != nil {
			observer(state)
		}
	}
	return Retry(ctx, policy, op)
}

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edgexpo/voicegateway/internal/metrics"
)

const (
	defaultPoolConnections = 10
	defaultPoolMaxSize     = 20
	defaultSessionRetries  = 3
	defaultSessionBackoff  = 300 * time.Millisecond
	defaultSessionTimeout  = 30 * time.Second

	// maxBackoff caps a single transport-level wait, Retry-After included
	maxBackoff = 120 * time.Second
)

// SessionConfig configures the connection pool and transport retry of a Session
type SessionConfig struct {
	// PoolConnections is the number of idle connections kept per backend host
	PoolConnections int

	// PoolMaxSize bounds the number of connections per backend host
	PoolMaxSize int

	// MaxRetries is the number of transport-level retries per request
	MaxRetries int

	// BackoffFactor is the first transport-level wait; it doubles per retry
	BackoffFactor time.Duration

	// Timeout is the per-attempt timeout used by Do
	Timeout time.Duration

	// UserAgent overrides the default "EdgExpo-<service>-Client/1.0"
	UserAgent string
}

// DefaultSessionConfig returns the pool and retry settings used for every backend
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PoolConnections: defaultPoolConnections,
		PoolMaxSize:     defaultPoolMaxSize,
		MaxRetries:      defaultSessionRetries,
		BackoffFactor:   defaultSessionBackoff,
		Timeout:         defaultSessionTimeout,
	}
}

// Session is a pooled HTTP client for one backend with transport-level retry.
// It is safe for concurrent use.
type Session struct {
	service   string
	cfg       SessionConfig
	transport *http.Transport
	client    *http.Client
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionLogger sets the logger used for failed requests
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSessionSleep replaces the wait between transport retries (used in tests)
func WithSessionSleep(sleep func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *Session) {
		s.sleep = sleep
	}
}

// NewSession creates a Session for the named service
func NewSession(service string, cfg SessionConfig, opts ...SessionOption) *Session {
	if cfg.PoolConnections <= 0 {
		cfg.PoolConnections = defaultPoolConnections
	}
	if cfg.PoolMaxSize <= 0 {
		cfg.PoolMaxSize = defaultPoolMaxSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = defaultSessionBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSessionTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = fmt.Sprintf("EdgExpo-%s-Client/1.0", service)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.PoolMaxSize,
		MaxIdleConnsPerHost:   cfg.PoolConnections,
		MaxConnsPerHost:       cfg.PoolMaxSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	s := &Session{
		service:   service,
		cfg:       cfg,
		transport: transport,
		client:    &http.Client{Transport: otelhttp.NewTransport(transport)},
		logger:    slog.Default(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Service returns the name of the backend this session talks to
func (s *Session) Service() string {
	return s.service
}

// Response is a fully read backend response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into v
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Request issues one call with transport retry and a per-attempt timeout.
// A status >= 400 after retries yields a KindUpstream ServiceError; network
// failures yield KindTimeout or KindConnection.
func (s *Session) Request(ctx context.Context, method, url string, timeout time.Duration, body []byte, contentType string) (*Response, error) {
	return s.request(ctx, method, url, timeout, body, contentType, s.cfg.MaxRetries)
}

// Probe issues a single GET without transport retry, for health checks and
// secondary lookups that have their own fallback.
func (s *Session) Probe(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	return s.request(ctx, http.MethodGet, url, timeout, nil, "", 0)
}

// RequestOnce is Request without transport retry
func (s *Session) RequestOnce(ctx context.Context, method, url string, timeout time.Duration, body []byte, contentType string) (*Response, error) {
	return s.request(ctx, method, url, timeout, body, contentType, 0)
}

func (s *Session) request(ctx context.Context, method, url string, timeout time.Duration, body []byte, contentType string, maxRetries int) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, newUnexpectedError(s.service, fmt.Errorf("failed to create request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.do(req, timeout, maxRetries)
	if err != nil {
		se := transportError(s.service, err)
		s.logger.Error("backend request failed",
			"service", s.service,
			"url", url,
			"kind", se.Kind.String(),
			"error", err,
		)
		return nil, se
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(s.service, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		s.logger.Error("backend returned error status",
			"service", s.service,
			"url", url,
			"status", resp.StatusCode,
		)
		return nil, upstreamError(s.service, resp.StatusCode, respBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// Do implements the HTTP doer interface expected by SDK clients. The final
// response is returned whatever its status; only transport errors are errors.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.do(req, s.cfg.Timeout, s.cfg.MaxRetries)
}

// ProbeDoer returns a doer that makes single attempts with the given timeout
func (s *Session) ProbeDoer(timeout time.Duration) HTTPDoer {
	return doerFunc(func(req *http.Request) (*http.Response, error) {
		return s.do(req, timeout, 0)
	})
}

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Close releases idle pooled connections
func (s *Session) Close() {
	s.transport.CloseIdleConnections()
}

func (s *Session) do(req *http.Request, timeout time.Duration, maxRetries int) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.BackoffFactor,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxBackoff,
	}
	schedule.Reset()

	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	retryable := retryableMethod(req.Method) && replayable

	// In-flight calls are not cancelled when the caller gives up
	parent := context.WithoutCancel(req.Context())

	for attempt := 0; ; attempt++ {
		attemptReq, cancel, err := prepareAttempt(parent, req, attempt, timeout)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := s.client.Do(attemptReq)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		metrics.RecordBackendRequest(s.service, req.Method, status, time.Since(start))

		canRetry := retryable && attempt < maxRetries && req.Context().Err() == nil

		if err != nil {
			cancel()
			if !canRetry {
				return nil, err
			}
			if sleepErr := s.backoff(req, schedule.NextBackOff(), attempt, 0, err); sleepErr != nil {
				return nil, err
			}
			continue
		}

		if canRetry && retryableStatus(resp.StatusCode) {
			wait := retryAfter(resp)
			if wait <= 0 {
				wait = schedule.NextBackOff()
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			cancel()
			if sleepErr := s.backoff(req, wait, attempt, resp.StatusCode, nil); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
}

func (s *Session) backoff(req *http.Request, wait time.Duration, attempt, status int, err error) error {
	metrics.RecordRetry(s.service, metrics.LayerTransport)
	s.logger.Warn("retrying backend request",
		"service", s.service,
		"method", req.Method,
		"url", req.URL.String(),
		"attempt", attempt+1,
		"status", status,
		"error", err,
		"wait_ms", wait.Milliseconds(),
	)
	return s.sleep(req.Context(), wait)
}

// prepareAttempt clones req onto a fresh per-attempt timeout and rewinds its body
func prepareAttempt(parent context.Context, req *http.Request, attempt int, timeout time.Duration) (*http.Request, context.CancelFunc, error) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	attemptReq := req.Clone(ctx)
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		attemptReq.Body = body
	}
	return attemptReq, cancel, nil
}

func retryableMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPost:
		return true
	}
	return false
}

// retryAfter returns the Retry-After wait for 429/503 responses, zero when absent
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0
	}
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	wait := time.Duration(seconds) * time.Second
	if wait > maxBackoff {
		wait = maxBackoff
	}
	return wait
}

// cancelOnClose releases the per-attempt context once the body is consumed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

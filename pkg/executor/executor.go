// Package executor sends inference requests to a backend with a per-attempt
// deadline, cancellation, and classified retries with exponential backoff.
//
// An Executor holds no per-call state and is safe for concurrent use.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/classify"
	"github.com/rhuss/modelbridge/pkg/debug"
	"github.com/rhuss/modelbridge/pkg/observability"
)

// maxErrorBody bounds how much of a non-2xx body is read for classification.
const maxErrorBody = 64 << 10

// Config controls attempts and backoff.
type Config struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts int

	// PerAttemptTimeout bounds a single attempt. For streaming requests it
	// covers the time until response headers arrive; the body is then bound
	// only to the caller's context. Zero disables the deadline.
	PerAttemptTimeout time.Duration

	// BaseDelay is the first backoff interval; each retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps every delay, including Retry-After hints.
	MaxDelay time.Duration

	// RateLimitFloor is the minimum delay after rate-limit style failures.
	RateLimitFloor time.Duration

	// Jitter is the randomization factor applied to each interval (0.1 = ±10%).
	Jitter float64

	// Headers are added to every request.
	Headers map[string]string
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		PerAttemptTimeout: 60 * time.Second,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		RateLimitFloor:    2 * time.Second,
		Jitter:            0.1,
	}
}

// Request describes one backend call.
type Request struct {
	URL string

	// Payload is marshaled to JSON. []byte and json.RawMessage are sent as-is.
	Payload any

	// Headers are added after Config.Headers and win on conflict.
	Headers map[string]string

	// Stream marks a request whose response is consumed incrementally.
	Stream bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient sets the HTTP client. The client's own Timeout should be
// zero; deadlines are applied per attempt.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithProvider sets the provider name used in logs and metric labels.
func WithProvider(name string) Option {
	return func(e *Executor) { e.provider = name }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

// Executor runs requests against a backend.
type Executor struct {
	cfg      Config
	client   *http.Client
	provider string
	sleep    SleepFunc
}

// New creates an Executor. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.RateLimitFloor <= 0 {
		cfg.RateLimitFloor = def.RateLimitFloor
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = def.Jitter
	}

	e := &Executor{
		cfg:      cfg,
		provider: "backend",
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = &http.Client{Transport: observability.InstrumentTransport(e.provider, nil)}
	}
	return e
}

// CloseIdleConnections releases pooled connections of the HTTP client.
func (e *Executor) CloseIdleConnections() {
	e.client.CloseIdleConnections()
}

// Do performs a non-streaming request and decodes the 2xx JSON body into
// out. Every returned error is an *api.APIError.
func (e *Executor) Do(ctx context.Context, req Request, out any) error {
	req.Stream = false
	resp, err := e.execute(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	debug.Raw(debug.Executor, "response: "+string(data))
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return api.NewError(api.ErrorKindParseFailure,
			fmt.Sprintf("failed to parse backend response: %s", err.Error())).
			WithStatus(resp.StatusCode).
			WithBody(string(data)).
			WithCause(err)
	}
	return nil
}

// Open performs a streaming request and returns the live 2xx response. The
// caller must close the body. Every returned error is an *api.APIError.
func (e *Executor) Open(ctx context.Context, req Request) (*http.Response, error) {
	req.Stream = true
	return e.execute(ctx, req)
}

func (e *Executor) execute(ctx context.Context, req Request) (*http.Response, error) {
	body, apiErr := encodePayload(req.Payload)
	if apiErr != nil {
		return nil, apiErr
	}
	debug.Raw(debug.Executor, "request: "+string(body))

	b := e.newBackOff()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, api.NewCancelledError(err)
		}

		debug.Log(debug.Executor, "sending attempt",
			"provider", e.provider, "attempt", attempt, "max_attempts", e.cfg.MaxAttempts,
			"url", req.URL, "stream", req.Stream)

		resp, hint, apiErr := e.attempt(ctx, req, body)
		if apiErr == nil {
			observability.AttemptsTotal.WithLabelValues(e.provider, "ok").Inc()
			return resp, nil
		}
		observability.AttemptsTotal.WithLabelValues(e.provider, string(apiErr.Kind)).Inc()

		if !apiErr.Retryable || attempt >= e.cfg.MaxAttempts {
			debug.Log(debug.Executor, "giving up",
				"provider", e.provider, "attempt", attempt, "kind", apiErr.Kind, "retryable", apiErr.Retryable)
			return nil, apiErr
		}

		delay := e.delay(b, apiErr.Kind, hint)
		slog.Warn("retrying backend request",
			"provider", e.provider,
			"attempt", attempt,
			"kind", apiErr.Kind,
			"status", apiErr.Status,
			"delay", delay,
		)
		observability.RetriesTotal.WithLabelValues(e.provider, string(apiErr.Kind)).Inc()

		if err := e.sleep(ctx, delay); err != nil {
			return nil, api.NewCancelledError(err)
		}
	}
}

// attempt sends one request. On failure it returns the classified error and
// any Retry-After hint from the response.
func (e *Executor) attempt(ctx context.Context, req Request, body []byte) (*http.Response, time.Duration, *api.APIError) {
	attemptCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	var timer *time.Timer
	if e.cfg.PerAttemptTimeout > 0 {
		timer = time.AfterFunc(e.cfg.PerAttemptTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	release := func() {
		if timer != nil {
			timer.Stop()
		}
		cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		release()
		return nil, 0, api.NewInvalidRequestError(fmt.Sprintf("failed to create HTTP request: %s", err.Error())).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range e.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	observability.AttemptDuration.WithLabelValues(e.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		release()
		return nil, 0, e.attemptFailure(ctx, &timedOut, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		release()
		debug.Log(debug.Executor, "backend returned error status",
			"provider", e.provider, "status", resp.StatusCode, "body", debug.Truncate(string(data), 512))
		hint, _ := parseRetryAfter(resp.Header, time.Now())
		return nil, hint, classify.FromStatus(resp.StatusCode, data)
	}

	if req.Stream {
		if timer != nil && !timer.Stop() {
			// The deadline fired between headers and now; the body is unusable.
			resp.Body.Close()
			cancel()
			return nil, 0, e.attemptFailure(ctx, &timedOut, context.Canceled)
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, 0, nil
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	release()
	if err != nil {
		if timedOut.Load() || ctx.Err() != nil {
			return nil, 0, e.attemptFailure(ctx, &timedOut, err)
		}
		return nil, 0, api.NewError(api.ErrorKindIncompleteResponse,
			fmt.Sprintf("reading backend response: %s", err.Error())).WithStatus(resp.StatusCode).WithCause(err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, 0, nil
}

// attemptFailure separates caller cancellation from the per-attempt deadline
// before falling back to transport classification.
func (e *Executor) attemptFailure(ctx context.Context, timedOut *atomic.Bool, err error) *api.APIError {
	switch {
	case ctx.Err() != nil:
		return api.NewCancelledError(ctx.Err())
	case timedOut.Load():
		return api.NewError(api.ErrorKindTimeout,
			fmt.Sprintf("attempt exceeded %s", e.cfg.PerAttemptTimeout)).WithCause(err)
	default:
		return classify.FromTransport(err)
	}
}

func encodePayload(payload any) ([]byte, *api.APIError) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, api.NewInvalidRequestError(fmt.Sprintf("failed to marshal request: %s", err.Error())).WithCause(err)
	}
	return body, nil
}

// cancelOnClose releases the attempt context when the stream body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

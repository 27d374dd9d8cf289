// Package remote is the resilient request/response client shared by every
// capability that can run on another machine.
//
// A call is retried on transport failures, per-attempt timeouts, and 5xx
// statuses with exponential backoff. 4xx statuses are returned after one
// attempt. Every remote operation in this module is a stateless single-shot
// call, so repeating it is safe.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/observability"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
)

const (
	maxResponseBytes = 64 << 20
	maxErrorBody     = 512
)

// Target is an immutable remote endpoint.
type Target struct {
	BaseURL string
	Timeout time.Duration
}

// RetryPolicy bounds retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts with a 500ms base delay capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// Delay returns the wait after failed attempt n (1-based): BaseDelay doubled
// n-1 times, capped at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestFunc builds a fresh request for one attempt. It is called again for
// every retry, so request bodies are never reused.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Client performs calls against one Target.
type Client struct {
	name    string
	target  Target
	base    *url.URL
	policy  RetryPolicy
	http    *http.Client
	sleep   func(context.Context, time.Duration) error
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout is ignored in favour of
// the Target's per-attempt timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// New creates a Client named name (used in logs and metrics).
func New(name string, target Target, policy RetryPolicy, opts ...Option) (*Client, error) {
	if target.BaseURL == "" {
		return nil, fmt.Errorf("remote %s: base url is required", name)
	}
	base, err := url.Parse(strings.TrimRight(target.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("remote %s: invalid base url: %w", name, err)
	}
	if target.Timeout <= 0 {
		target.Timeout = 30 * time.Second
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	c := &Client{
		name:   name,
		target: target,
		base:   base,
		policy: policy,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "remote." + name + " " + r.Method + " " + r.URL.Path
				}),
			),
		},
		sleep:   sleepCtx,
		metrics: metrics.DefaultMetrics,
		tracer:  observability.Tracer(),
		logger:  logging.WithComponent("remote." + name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target returns the client's target.
func (c *Client) Target() Target { return c.target }

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.base.JoinPath(strings.TrimLeft(path, "/")).String()
}

// Resolve turns a possibly relative reference returned by the peer into an
// absolute URL.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return c.base.ResolveReference(u).String(), nil
}

// Do runs build against the target under the retry policy. It returns a
// *faults.RejectedRequestError on 4xx, and an error wrapping
// faults.ErrRetriesExhausted and the last *faults.TransportError once attempts
// run out. Cancelling ctx stops retrying.
func (c *Client) Do(ctx context.Context, op string, build RequestFunc) (*Response, error) {
	var last error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.policy.Delay(attempt - 1)
			c.metrics.RecordRemoteRetry(c.name, op)
			c.logger.Warn().
				Err(last).
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying remote call")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}

		resp, err := c.attempt(ctx, op, attempt, build)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if !faults.IsRetryable(err) {
			return nil, err
		}
		last = err
	}

	c.logger.Error().Err(last).Str("op", op).Int("attempts", c.policy.MaxAttempts).Msg("Remote call failed")
	return nil, fmt.Errorf("%s: %w after %d attempts: %w", op, faults.ErrRetriesExhausted, c.policy.MaxAttempts, last)
}

func (c *Client) attempt(ctx context.Context, op string, n int, build RequestFunc) (resp *Response, err error) {
	ctx, span := c.tracer.Start(ctx, "remote."+c.name+"."+op, trace.WithAttributes(
		attribute.String("remote.target", c.target.BaseURL),
		attribute.Int("remote.attempt", n),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = faults.Kind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		c.metrics.RecordRemoteAttempt(c.name, op, outcome, time.Since(start).Seconds())
		span.End()
	}()

	actx, cancel := context.WithTimeout(ctx, c.target.Timeout)
	defer cancel()

	req, err := build(actx)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &faults.TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		// A body cut short by the timeout is a failed attempt, never a partial success.
		return nil, &faults.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	switch code := httpResp.StatusCode; {
	case code >= 500:
		return nil, &faults.TransportError{Op: op, StatusCode: code, Err: errors.New(http.StatusText(code))}
	case code >= 300:
		return nil, &faults.RejectedRequestError{Op: op, StatusCode: code, Body: truncate(string(body), maxErrorBody)}
	}

	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

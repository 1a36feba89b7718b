// Package ratelimit issues single provider calls with bounded exponential
// backoff on rate limiting and connection-level failures.
package ratelimit

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Defaults for the backoff policy.
const (
	DefaultBase       = time.Second
	DefaultCap        = 60 * time.Second
	DefaultMaxRetries = 5
)

// CallFunc performs exactly one attempt of a logical call.
// A non-nil error means the attempt failed before a response was classified.
type CallFunc func(ctx context.Context) (*domain.Response, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// TransientFunc reports whether a call error is worth retrying.
type TransientFunc func(error) bool

// Policy bounds the retries of a single logical call.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// DefaultPolicy returns base 1s, cap 60s, 5 retries.
func DefaultPolicy() Policy {
	return Policy{Base: DefaultBase, Cap: DefaultCap, MaxRetries: DefaultMaxRetries}
}

// backoff builds a fresh delay sequence: min(base*2^attempt, cap) for each retry.
func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(p.Cap, b)
	return retry.WithMaxRetries(uint64(p.MaxRetries), b)
}

// Client wraps provider calls with retry. It holds no per-call state and is
// safe for concurrent use; backoff only blocks the calling goroutine.
type Client struct {
	policy    Policy
	sleep     Sleeper
	transient TransientFunc
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy sets the backoff policy. Zero Base or Cap fall back to the defaults;
// MaxRetries is taken as given (0 disables retries).
func WithPolicy(p Policy) Option {
	return func(c *Client) {
		if p.Base <= 0 {
			p.Base = DefaultBase
		}
		if p.Cap <= 0 {
			p.Cap = DefaultCap
		}
		if p.MaxRetries < 0 {
			p.MaxRetries = 0
		}
		c.policy = p
	}
}

// WithSleeper replaces the timer-based sleep, e.g. with a recording fake in tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithTransient replaces the transient-failure predicate.
func WithTransient(fn TransientFunc) Option {
	return func(c *Client) { c.transient = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		policy:    DefaultPolicy(),
		sleep:     TimerSleep,
		transient: IsTransient,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the configured policy.
func (c *Client) Policy() Policy {
	return c.policy
}

// Call runs call until it succeeds, fails terminally, or exhausts the policy.
//
// A success response is returned with a nil error. An error response is returned
// together with a *domain.MutationError. Exhaustion yields a *domain.RetryExhaustedError
// wrapping the last transient failure, plus the last response if there was one.
func (c *Client) Call(ctx context.Context, name string, call CallFunc) (*domain.Response, error) {
	b := c.policy.backoff()
	for attempt := 1; ; attempt++ {
		resp, err := call(ctx)

		var cause error
		var wait time.Duration
		reason := ""
		switch {
		case err != nil:
			if ctx.Err() != nil || !c.transient(err) {
				return resp, err
			}
			cause, reason = err, "connection"
		case resp == nil:
			return nil, &domain.MutationError{Message: "provider returned no response"}
		case resp.Status == domain.ResponseSuccess:
			return resp, nil
		case resp.Status == domain.ResponseRateLimited:
			cause = &domain.RateLimitedError{StatusCode: resp.HTTPStatus, Message: resp.Message}
			reason = "rate_limited"
			wait = resp.RetryAfter
		default:
			return resp, &domain.MutationError{StatusCode: resp.HTTPStatus, Message: resp.Message}
		}

		delay, stop := b.Next()
		if stop {
			c.metrics.RetryExhausted()
			c.logger.Warn().Str("call", name).Int("attempts", attempt).Err(cause).Msg("Retry budget exhausted")
			return resp, &domain.RetryExhaustedError{Call: name, Attempts: attempt, Last: cause}
		}
		if wait > 0 {
			delay = wait
		}

		c.metrics.Retry(reason)
		c.logger.Debug().
			Str("call", name).
			Int("attempt", attempt).
			Str("reason", reason).
			Dur("delay", delay).
			Err(cause).
			Msg("Retrying after backoff")

		if err := c.sleep(ctx, delay); err != nil {
			return resp, err
		}
	}
}

// TimerSleep waits on a timer, returning early with the context error.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transientError marks an error as retryable regardless of its type.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that IsTransient reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports connection-level failures such as socket errors, resets,
// timeouts and truncated responses. TLS, URL and other request errors are
// terminal even when they surface through the HTTP client. Cancellation is
// never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

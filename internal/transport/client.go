// Package transport is the HTTP plumbing shared by the REST providers: it
// applies credentials, encodes JSON bodies and classifies responses into
// domain.Response values for the retrying client.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bcnelson/ipsync/internal/domain"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error body ends up in a message.
const maxErrorBody = 512

// Client sends authenticated JSON requests relative to a base URL.
type Client struct {
	baseURL string
	auth    Authenticator
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithInsecureTLS disables certificate verification. On-premise consoles
// commonly run with self-signed certificates.
func WithInsecureTLS(insecure bool) Option {
	return func(c *Client) {
		if !insecure {
			return
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per provider
		c.http.Transport = tr
	}
}

// New creates a Client. A nil auth sends no credentials.
func New(baseURL string, auth Authenticator, opts ...Option) *Client {
	if auth == nil {
		auth = NoAuth{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends one request and classifies the response. When the exchange
// succeeds and out is non-nil the body is decoded into out.
//
// The returned error is reserved for failures that prevent classification:
// building the request, the network, or decoding a success body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) (*domain.Response, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", target, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	result := Classify(resp, data)
	if result.Status == domain.ResponseSuccess && out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return result, fmt.Errorf("decoding %s %s response: %w", method, u.Path, err)
		}
	}
	return result, nil
}

// Classify maps an HTTP response onto a domain.Response: 2xx is success, 429 is
// rate limited with Retry-After honored, everything else is an error carrying
// the server's message.
func Classify(resp *http.Response, body []byte) *domain.Response {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.OK(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.Response{
			Status:     domain.ResponseRateLimited,
			HTTPStatus: resp.StatusCode,
			Message:    errorMessage(body),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	default:
		msg := errorMessage(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &domain.Response{
			Status:     domain.ResponseError,
			HTTPStatus: resp.StatusCode,
			Message:    msg,
		}
	}
}

// ParseRetryAfter reads delta-seconds or an HTTP date. Unparseable or past
// values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// errorMessage prefers a JSON "message" or "error" field over the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != nil:
			if s, ok := payload.Error.(string); ok && s != "" {
				return s
			}
		case len(payload.Errors) > 0 && payload.Errors[0].Message != "":
			return payload.Errors[0].Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}

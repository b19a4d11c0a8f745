// Package upstream talks to the case-management and assessment services
// that feed tier calculations.
package upstream

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/tier-cli/internal/resilience"
)

const maxErrorBody = 512

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeouts sets the dial and response-header timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		c.http = newHTTPClient(connect, read)
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithPolicy sets the retry policy.
func WithPolicy(p resilience.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithBreaker routes calls through a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// Client is a JSON-over-HTTP client for one upstream service with bounded
// retry of transient failures.
type Client struct {
	service string
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewClient creates a client for service rooted at baseURL.
func NewClient(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(time.Second, 5*time.Second),
		limiter: rate.NewLimiter(rate.Inf, 0),
		policy:  resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = resilience.LogRetries(service, "get")
	}
	return c
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	return &http.Client{
		Timeout: connect + read,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			ResponseHeaderTimeout: read,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Service returns the upstream's name.
func (c *Client) Service() string {
	return c.service
}

// GetJSON fetches path and decodes the body into out. 404 and 400 come back
// as a *StatusError straight away; 5xx, 408, 429 and network failures are
// retried and surface as a *resilience.TransientError once exhausted.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	attempt := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, resilience.Retry(ctx, c.policy, func(ctx context.Context) error {
			return c.get(ctx, path, out)
		})
	}

	var err error
	if c.breaker != nil {
		_, err = resilience.Call(ctx, c.breaker, attempt)
	} else {
		_, err = attempt(ctx)
	}
	return err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "upstream: %s rate limit wait", c.service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrapf(err, "upstream: %s create request", c.service)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil && resilience.IsTransient(err) {
			return resilience.Transient(eris.Wrapf(err, "upstream: %s GET %s", c.service, path), 0)
		}
		return eris.Wrapf(err, "upstream: %s GET %s", c.service, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return eris.Wrapf(err, "upstream: %s decode %s", c.service, path)
		}
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{Service: c.service, Path: path, Status: resp.StatusCode, Body: string(body)}
	if resilience.TransientStatus(resp.StatusCode) {
		return resilience.Transient(se, resp.StatusCode)
	}
	return se
}

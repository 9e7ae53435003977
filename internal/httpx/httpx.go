// Package httpx is the outbound HTTP layer shared by provider adapters: a
// tuned transport, a per-provider circuit breaker, bounded retries for
// transient failures, and rate-limit bookkeeping on every real request.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"

	appLog "eventscout/internal/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 16 << 20

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrCircuitOpen  = errors.New("circuit open")
)

// StatusError is a non-success HTTP status from an upstream.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d", e.Provider, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Recorder is told about every request that actually goes on the wire.
type Recorder interface {
	Record(provider string)
}

// Options configures a Client. Zero values pick defaults.
type Options struct {
	Provider string
	// Timeout bounds a single attempt.
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
	Recorder       Recorder
	// BreakerFailures consecutive failures open the breaker for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// Transport overrides the default transport, for tests.
	Transport http.RoundTripper
}

type Client struct {
	provider  string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	recorder  Recorder
	retries   uint64
	initial   time.Duration
	maxWait   time.Duration
	userAgent string
}

// NewTransport returns the pooled transport every client shares settings with.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "eventscout/1.0"
	}
	tr := opts.Transport
	if tr == nil {
		tr = NewTransport()
	}

	failures := opts.BreakerFailures
	provider := opts.Provider
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only upstream trouble counts; a 4xx is the upstream answering.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			appLog.Warn("provider circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		provider:  provider,
		http:      &http.Client{Timeout: opts.Timeout, Transport: tr},
		breaker:   breaker,
		recorder:  opts.Recorder,
		retries:   opts.MaxRetries,
		initial:   opts.InitialBackoff,
		maxWait:   opts.MaxBackoff,
		userAgent: opts.UserAgent,
	}
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetch performs req with retries on network errors and 5xx. Statuses in
// accept (200 when empty) succeed; anything else becomes a *StatusError.
func (c *Client) Fetch(ctx context.Context, req *http.Request, accept ...int) (*Response, error) {
	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var out *Response
	operation := func() error {
		res, err := c.breaker.Execute(func() (any, error) {
			return c.do(ctx, req, accept)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%s: %w", c.provider, ErrCircuitOpen))
			}
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = res.(*Response)
		return nil
	}

	var bo backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.initial),
		backoff.WithMaxInterval(c.maxWait),
		backoff.WithMaxElapsedTime(0),
	)
	bo = backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, accept []int) (*Response, error) {
	if c.recorder != nil {
		c.recorder.Record(c.provider)
	}
	resp, err := c.http.Do(req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range accept {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Provider: c.provider, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.provider, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// GetJSON fetches rawURL with header and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("%s: malformed response: %w", c.provider, err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// Package httpclient is the outbound HTTP layer shared by every upstream
// collaborator (record store, geocoder, token exchange, identity key set).
//
// Each call is bounded by a hard per-call timeout so a slow upstream surfaces
// as errors.ErrTimeout instead of hanging the inbound request, optionally
// throttled by a token-bucket limiter, and reported to a metrics.Sink.
package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/metrics"
)

// DefaultTimeout bounds a single outbound call when Options.Timeout is unset.
const DefaultTimeout = 6 * time.Second

// maxBodyBytes caps how much of an upstream response is buffered.
const maxBodyBytes = 4 << 20

// Options configures an outbound Client.
type Options struct {
	Service           string        // Label for logs and metrics: records, geocode, token, jwks
	Timeout           time.Duration // Per call, including reading the body
	RequestsPerMinute int           // 0 = unlimited
	Sink              metrics.Sink
	Logger            *zap.SugaredLogger

	// HTTPClient overrides the SSRF-guarded default. Tests pass httptest's client.
	HTTPClient *http.Client
}

// Response is a fully-read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs bounded, throttled, observed outbound calls.
type Client struct {
	http    *SaferClient
	service string
	timeout time.Duration
	limiter *rate.Limiter
	sink    metrics.Sink
	logger  *zap.SugaredLogger
}

// New creates an outbound client.
func New(opts Options) *Client {
	c := &Client{
		service: opts.Service,
		timeout: opts.Timeout,
		sink:    metrics.OrNoop(opts.Sink),
		logger:  opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = logger.ComponentLogger("httpclient")
	}
	if opts.HTTPClient != nil {
		c.http = WrapClient(opts.HTTPClient)
	} else {
		c.http = NewSaferClient()
	}
	if opts.RequestsPerMinute > 0 {
		// Spread evenly across the minute with a small burst for the chained
		// lookups a single workflow issues back to back.
		every := time.Minute / time.Duration(opts.RequestsPerMinute)
		burst := opts.RequestsPerMinute / 20
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
	return c
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do sends req under the per-call timeout and returns the fully-read response.
// Deadline expiry is marked errors.ErrTimeout; a limiter that cannot admit the
// call before the deadline is marked errors.ErrRateLimited. Non-2xx statuses are
// not errors here: callers interpret provider envelopes themselves.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			c.sink.UpstreamCallCompleted(c.service, metrics.StatusClassRateLimited, 0)
			return nil, errors.Mark(
				errors.Wrapf(err, "%s: outbound rate limit", c.service),
				errors.ErrRateLimited,
			)
		}
		c.sink.RateLimitWaited(c.service, time.Since(waitStart))
	}

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		err = c.classify(ctx, err, "%s %s %s", c.service, req.Method, req.URL.Path)
		c.observe(0, err, start)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		err = c.classify(ctx, err, "%s: read response body", c.service)
		c.observe(resp.StatusCode, err, start)
		return nil, err
	}

	c.observe(resp.StatusCode, nil, start)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) classify(ctx context.Context, err error, format string, args ...interface{}) error {
	wrapped := errors.Wrapf(err, format, args...)
	if ctx.Err() == context.DeadlineExceeded || isNetTimeout(err) {
		return errors.Mark(
			errors.WithHintf(wrapped, "no answer within %s", c.timeout),
			errors.ErrTimeout,
		)
	}
	return wrapped
}

func (c *Client) observe(status int, err error, start time.Time) {
	d := time.Since(start)
	class := metrics.ClassifyStatus(status, err)
	c.sink.UpstreamCallCompleted(c.service, class, d)
	c.logger.Debugw("Upstream call",
		logger.FieldService, c.service,
		logger.FieldStatus, status,
		"status_class", class,
		logger.FieldDurationMS, d.Milliseconds(),
	)
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

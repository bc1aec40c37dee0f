// Package credential caches the service access token used to call the record
// store on this service's own behalf.
//
// The cache holds a single entry. A token is served from memory until it is
// within SafetyMargin of expiry; after that the next caller exchanges the
// long-lived refresh credential for a new one. Concurrent refreshes may race:
// any successfully exchanged token is valid, so the last writer wins.
package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/metrics"
)

const (
	// SafetyMargin is how long before ExpiresAt a credential stops being served
	SafetyMargin = 60 * time.Second

	// DefaultRetries is how many times a failed exchange is retried after the first attempt
	DefaultRetries = 3

	// DefaultBackoff is the first retry delay; each later retry doubles it
	DefaultBackoff = time.Second
)

// ErrExchangeFailed matches every final exchange failure via errors.Is.
var ErrExchangeFailed = errors.New("service credential exchange failed")

// Credential is an exchanged access token and the instant it stops being valid.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// UsableAt reports whether the credential may still be sent at now.
func (c Credential) UsableAt(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-SafetyMargin))
}

// Grant is what an exchange returns: a token and its lifetime from now.
type Grant struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Exchanger trades the service's long-lived secret for a fresh Grant.
type Exchanger interface {
	Exchange(ctx context.Context) (Grant, error)
}

// ExchangeError is the final failure of a credential exchange. Payload carries
// the provider's raw error body for operators; it is never sent to callers.
type ExchangeError struct {
	Payload    string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *ExchangeError) Error() string {
	msg := ErrExchangeFailed.Error()
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	switch {
	case e.Payload != "":
		return msg + ": " + e.Payload
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Is matches ErrExchangeFailed, and errors.ErrRateLimited when the provider
// says the refresh credential is being used too often.
func (e *ExchangeError) Is(target error) bool {
	if target == ErrExchangeFailed {
		return true
	}
	if target == errors.ErrRateLimited {
		return isRateLimitPayload(e.Payload) || e.StatusCode == 429
	}
	return false
}

func isRateLimitPayload(payload string) bool {
	lower := strings.ToLower(payload)
	return strings.Contains(lower, "too many requests")
}

// Cache is a single-entry TTL cache in front of an Exchanger.
type Cache struct {
	exchanger Exchanger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	retries   int
	backoff   time.Duration
	sink      metrics.Sink
	logger    *zap.SugaredLogger

	mu      sync.RWMutex
	current Credential
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, letting tests force expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSleep replaces the backoff sleep, letting tests skip real waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Cache) { c.sleep = sleep }
}

// WithRetries sets how many retries follow a failed first attempt.
func WithRetries(n int) Option {
	return func(c *Cache) { c.retries = n }
}

// WithMetrics reports exchange outcomes to sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(c *Cache) { c.sink = sink }
}

// WithLogger sets the cache's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Cache) { c.logger = l }
}

// NewCache creates an empty cache; the first Token call exchanges.
func NewCache(exchanger Exchanger, opts ...Option) *Cache {
	c := &Cache{
		exchanger: exchanger,
		now:       time.Now,
		sleep:     sleepContext,
		retries:   DefaultRetries,
		backoff:   DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sink = metrics.OrNoop(c.sink)
	if c.logger == nil {
		c.logger = logger.ComponentLogger("credential")
	}
	return c
}

// Token returns a usable credential, exchanging only when the cached one is
// absent or inside the safety margin.
func (c *Cache) Token(ctx context.Context) (Credential, error) {
	c.mu.RLock()
	cached := c.current
	c.mu.RUnlock()

	if cached.UsableAt(c.now()) {
		return cached, nil
	}

	log := logger.FromContext(ctx, c.logger)
	log.Debugw("Service credential missing or expiring, exchanging")

	grant, attempts, err := c.exchangeWithRetry(ctx)
	if err != nil {
		c.sink.TokenExchange(metrics.OutcomeFailed, attempts)
		log.Errorw("Service credential exchange failed",
			logger.FieldAttempt, attempts,
			logger.FieldError, err,
		)
		return Credential{}, err
	}
	c.sink.TokenExchange(metrics.OutcomeSuccess, attempts)

	fresh := Credential{
		AccessToken: grant.AccessToken,
		ExpiresAt:   c.now().Add(grant.ExpiresIn),
	}

	c.mu.Lock()
	c.current = fresh
	c.mu.Unlock()

	log.Infow("Service credential refreshed",
		logger.FieldAttempt, attempts,
		"expires_at", fresh.ExpiresAt.Format(time.RFC3339),
	)
	return fresh, nil
}

// Invalidate drops the cached credential so the next Token call exchanges.
// The record store client calls this when the provider rejects a token early.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = Credential{}
	c.mu.Unlock()
}

// exchangeWithRetry makes one attempt plus up to c.retries retries, doubling
// the delay from c.backoff. Context cancellation stops the loop.
func (c *Cache) exchangeWithRetry(ctx context.Context) (Grant, int, error) {
	delay := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.retries+1; attempt++ {
		grant, err := c.exchanger.Exchange(ctx)
		if err == nil && grant.AccessToken != "" {
			return grant, attempt, nil
		}
		if err == nil {
			err = &ExchangeError{Payload: "exchange returned no access token"}
		}
		lastErr = err

		c.logger.Warnw("Credential exchange attempt failed",
			logger.FieldAttempt, attempt,
			logger.FieldError, err,
		)

		if attempt > c.retries {
			break
		}
		if ctx.Err() != nil {
			return Grant{}, attempt, finalError(lastErr, attempt)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return Grant{}, attempt, finalError(lastErr, attempt)
		}
		delay *= 2
	}

	return Grant{}, c.retries + 1, finalError(lastErr, c.retries+1)
}

func finalError(err error, attempts int) error {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		out := *exErr
		out.Attempts = attempts
		return &out
	}
	return &ExchangeError{Attempts: attempts, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

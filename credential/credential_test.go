package credential

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/moverdesk/errors"
)

// fakeExchanger returns scripted results in order, repeating the last one.
type fakeExchanger struct {
	mu      sync.Mutex
	results []fakeResult
	calls   int
}

type fakeResult struct {
	grant Grant
	err   error
}

func (f *fakeExchanger) Exchange(ctx context.Context) (Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].grant, f.results[i].err
}

func (f *fakeExchanger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestCache(t *testing.T, ex Exchanger) (*Cache, *fakeClock, *recordedSleeps) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	sleeps := &recordedSleeps{}
	cache := NewCache(ex,
		WithClock(clock.Now),
		WithSleep(sleeps.Sleep),
		WithLogger(zaptest.NewLogger(t).Sugar()),
	)
	return cache, clock, sleeps
}

func hourGrant(token string) fakeResult {
	return fakeResult{grant: Grant{AccessToken: token, ExpiresIn: time.Hour}}
}

func TestCache_ReusesTokenWithinLifetime(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{hourGrant("tok-1")}}
	cache, clock, _ := newTestCache(t, ex)

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first.AccessToken)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, ex.Calls(), "second call must not hit the network")
}

func TestCache_RefreshesInsideSafetyMargin(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{hourGrant("tok-1"), hourGrant("tok-2")}}
	cache, clock, _ := newTestCache(t, ex)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	// 59 minutes in: one minute left, which is inside the 60s margin boundary
	clock.Advance(59 * time.Minute)
	cred, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", cred.AccessToken)
	assert.Equal(t, 2, ex.Calls())
}

func TestCache_JustOutsideMarginStillCached(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{hourGrant("tok-1"), hourGrant("tok-2")}}
	cache, clock, _ := newTestCache(t, ex)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	clock.Advance(58*time.Minute + 59*time.Second)
	cred, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", cred.AccessToken)
	assert.Equal(t, 1, ex.Calls())
}

func TestCache_Invalidate(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{hourGrant("tok-1"), hourGrant("tok-2")}}
	cache, _, _ := newTestCache(t, ex)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	cred, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", cred.AccessToken)
	assert.Equal(t, 2, ex.Calls())
}

func TestCache_RetriesWithExponentialBackoff(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{
		{err: &ExchangeError{Payload: `{"error":"invalid_code"}`}},
		{err: errors.New("connection reset")},
		hourGrant("tok-3"),
	}}
	cache, _, sleeps := newTestCache(t, ex)

	cred, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-3", cred.AccessToken)
	assert.Equal(t, 3, ex.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
}

func TestCache_FinalFailureCarriesPayload(t *testing.T) {
	payload := `{"error":"Access Denied","error_description":"invalid client"}`
	ex := &fakeExchanger{results: []fakeResult{{err: &ExchangeError{Payload: payload, StatusCode: 400}}}}
	cache, _, sleeps := newTestCache(t, ex)

	_, err := cache.Token(context.Background())
	require.Error(t, err)

	assert.Equal(t, 4, ex.Calls(), "one attempt plus three retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps.delays)

	assert.True(t, errors.Is(err, ErrExchangeFailed))
	assert.False(t, errors.Is(err, errors.ErrRateLimited))

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, payload, exErr.Payload)
	assert.Equal(t, 4, exErr.Attempts)
	assert.Contains(t, err.Error(), "after 4 attempt(s)")
}

func TestCache_TransportFailureIsWrapped(t *testing.T) {
	timeout := errors.Mark(errors.New("token: deadline"), errors.ErrTimeout)
	ex := &fakeExchanger{results: []fakeResult{{err: timeout}}}
	cache, _, _ := newTestCache(t, ex)

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExchangeFailed))
	assert.True(t, errors.Is(err, errors.ErrTimeout), "cause stays inspectable")
}

func TestCache_RateLimitPayloadMatchesRateLimited(t *testing.T) {
	payload := `{"error_description":"You have made too many requests continuously. Please try again after some time.","error":"Access Denied","status":"failure"}`
	ex := &fakeExchanger{results: []fakeResult{{err: &ExchangeError{Payload: payload, StatusCode: 400}}}}
	cache, _, _ := newTestCache(t, ex)

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
	assert.True(t, errors.Is(err, ErrExchangeFailed))
}

func TestCache_CanceledContextStopsRetrying(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{{err: errors.New("boom")}}}
	cache, _, _ := newTestCache(t, ex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Token(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, ex.Calls())
	assert.True(t, errors.Is(err, ErrExchangeFailed))
}

func TestCache_EmptyGrantIsFailure(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{{grant: Grant{}}}}
	cache, _, _ := newTestCache(t, ex)

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExchangeFailed))
}

func TestCache_ConcurrentCallersGetValidToken(t *testing.T) {
	ex := &fakeExchanger{results: []fakeResult{hourGrant("tok")}}
	cache, _, _ := newTestCache(t, ex)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := cache.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", cred.AccessToken)
		}()
	}
	wg.Wait()

	// Racing refreshes are allowed; at least one and at most one per caller
	assert.GreaterOrEqual(t, ex.Calls(), 1)
	assert.LessOrEqual(t, ex.Calls(), 20)
}

func TestCredential_UsableAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, Credential{}.UsableAt(now))
	assert.True(t, Credential{AccessToken: "x", ExpiresAt: now.Add(2 * time.Minute)}.UsableAt(now))
	assert.False(t, Credential{AccessToken: "x", ExpiresAt: now.Add(60 * time.Second)}.UsableAt(now))
	assert.False(t, Credential{AccessToken: "x", ExpiresAt: now.Add(-time.Second)}.UsableAt(now))
}

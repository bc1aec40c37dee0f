package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/internal/httpclient"
)

func newTestExchanger(t *testing.T, handler http.HandlerFunc) *OAuthExchanger {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := httpclient.New(httpclient.Options{
		Service:    "token",
		Timeout:    2 * time.Second,
		HTTPClient: srv.Client(),
		Logger:     zaptest.NewLogger(t).Sugar(),
	})
	return NewOAuthExchanger(OAuthConfig{
		AccountsURL:  srv.URL + "/",
		ClientID:     "1000.CLIENT",
		ClientSecret: "s3cret",
		RefreshToken: "1000.refresh",
	}, client)
}

func TestOAuthExchanger_Success(t *testing.T) {
	ex := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/v2/token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1000.refresh", q.Get("refresh_token"))
		assert.Equal(t, "1000.CLIENT", q.Get("client_id"))
		assert.Equal(t, "s3cret", q.Get("client_secret"))
		assert.Equal(t, "refresh_token", q.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"1000.abc","api_domain":"https://www.zohoapis.com","token_type":"Bearer","expires_in":3600}`))
	})

	grant, err := ex.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000.abc", grant.AccessToken)
	assert.Equal(t, time.Hour, grant.ExpiresIn)
}

func TestOAuthExchanger_MissingExpiryDefaultsToOneHour(t *testing.T) {
	ex := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"1000.abc"}`))
	})

	grant, err := ex.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Hour, grant.ExpiresIn)
}

func TestOAuthExchanger_ErrorPayload(t *testing.T) {
	ex := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"invalid_code"}`))
	})

	_, err := ex.Exchange(context.Background())
	require.Error(t, err)

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, `{"error":"invalid_code"}`, exErr.Payload)
	assert.Equal(t, http.StatusOK, exErr.StatusCode)
}

func TestOAuthExchanger_TooManyRequests(t *testing.T) {
	ex := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_description":"You have made too many requests continuously.","error":"Access Denied"}`))
	})

	_, err := ex.Exchange(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
}

func TestOAuthExchanger_NonJSON(t *testing.T) {
	ex := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := ex.Exchange(context.Background())
	require.Error(t, err)
	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, http.StatusBadGateway, exErr.StatusCode)
}

func TestOAuthExchanger_Unconfigured(t *testing.T) {
	ex := NewOAuthExchanger(OAuthConfig{AccountsURL: "https://accounts.zoho.com"}, httpclient.New(httpclient.Options{}))

	_, err := ex.Exchange(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExchangeFailed))
}

func TestOAuthExchanger_WithCache(t *testing.T) {
	calls := 0
	ex := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"access_token":"1000.abc","expires_in":3600}`))
	})
	cache := NewCache(ex, WithLogger(zaptest.NewLogger(t).Sugar()))

	for i := 0; i < 3; i++ {
		cred, err := cache.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "1000.abc", cred.AccessToken)
	}
	assert.Equal(t, 1, calls)
}

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/internal/httpclient"
)

const testProject = "P2abc"

var testNow = time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

type keyServer struct {
	srv     *httptest.Server
	fetches atomic.Int32
	keys    atomic.Value // []jose.JSONWebKey
}

func newKeyServer(t *testing.T, keys ...jose.JSONWebKey) *keyServer {
	t.Helper()
	ks := &keyServer{}
	ks.keys.Store(keys)
	ks.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.fetches.Add(1)
		set := jose.JSONWebKeySet{Keys: ks.keys.Load().([]jose.JSONWebKey)}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(ks.srv.Close)
	return ks
}

func (ks *keyServer) keySet(t *testing.T, now func() time.Time) *KeySet {
	client := httpclient.New(httpclient.Options{Service: "jwks", HTTPClient: ks.srv.Client()})
	set := NewKeySet(ks.srv.URL, client, zaptest.NewLogger(t).Sugar())
	set.now = now
	return set
}

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func publicJWK(kid, alg string, pub any) jose.JSONWebKey {
	return jose.JSONWebKey{Key: pub, KeyID: kid, Algorithm: alg, Use: "sig"}
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email    string   `json:"email,omitempty"`
	LoginIDs []string `json:"loginIds,omitempty"`
}

func sign(t *testing.T, method jwt.SigningMethod, kid string, key any, claims tokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() tokenClaims {
	return tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://api.descope.com/" + testProject,
			Subject:   "U2xyz",
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(10 * time.Minute)),
		},
		Email: "jane@example.com",
	}
}

func TestVerifier_RS256(t *testing.T) {
	priv := rsaKey(t)
	ks := newKeyServer(t, publicJWK("k1", "RS256", &priv.PublicKey))
	v := NewVerifier(ks.keySet(t, func() time.Time { return testNow }), testProject, WithClock(func() time.Time { return testNow }))

	claims, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, "k1", priv, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, "U2xyz", claims.Subject)
	assert.Equal(t, testNow.Add(10*time.Minute), claims.ExpiresAt)
}

func TestVerifier_ES256(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ks := newKeyServer(t, publicJWK("ec1", "ES256", &priv.PublicKey))
	v := NewVerifier(ks.keySet(t, time.Now), testProject, WithClock(func() time.Time { return testNow }))

	claims, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodES256, "ec1", priv, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", claims.Email)
}

func TestVerifier_Rejections(t *testing.T) {
	priv := rsaKey(t)
	other := rsaKey(t)
	ks := newKeyServer(t, publicJWK("k1", "RS256", &priv.PublicKey))
	v := NewVerifier(ks.keySet(t, time.Now), testProject, WithClock(func() time.Time { return testNow }))

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Hour))

	notYet := validClaims()
	notYet.NotBefore = jwt.NewNumericDate(testNow.Add(time.Hour))

	noExp := validClaims()
	noExp.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://api.descope.com/P9other"

	noEmail := validClaims()
	noEmail.Email = ""

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", sign(t, jwt.SigningMethodRS256, "k1", other, validClaims())},
		{"expired", sign(t, jwt.SigningMethodRS256, "k1", priv, expired)},
		{"not yet valid", sign(t, jwt.SigningMethodRS256, "k1", priv, notYet)},
		{"missing exp", sign(t, jwt.SigningMethodRS256, "k1", priv, noExp)},
		{"wrong issuer", sign(t, jwt.SigningMethodRS256, "k1", priv, wrongIssuer)},
		{"no email", sign(t, jwt.SigningMethodRS256, "k1", priv, noEmail)},
		{"hmac", sign(t, jwt.SigningMethodHS256, "k1", []byte("secret"), validClaims())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrUnauthorized), "got %v", err)
		})
	}
}

func TestVerifier_EmailFallbacks(t *testing.T) {
	priv := rsaKey(t)
	ks := newKeyServer(t, publicJWK("k1", "RS256", &priv.PublicKey))
	v := NewVerifier(ks.keySet(t, time.Now), testProject, WithClock(func() time.Time { return testNow }))

	fromLogin := validClaims()
	fromLogin.Email = ""
	fromLogin.LoginIDs = []string{"login@example.com", "other@example.com"}
	claims, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, "k1", priv, fromLogin))
	require.NoError(t, err)
	assert.Equal(t, "login@example.com", claims.Email)

	fromSubject := validClaims()
	fromSubject.Email = ""
	fromSubject.Subject = "sub@example.com"
	claims, err = v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, "k1", priv, fromSubject))
	require.NoError(t, err)
	assert.Equal(t, "sub@example.com", claims.Email)
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", ExtractEmail(" a@x.com ", []string{"b@x.com"}, "c@x.com"))
	assert.Equal(t, "b@x.com", ExtractEmail("", []string{"b@x.com"}, "c@x.com"))
	assert.Equal(t, "c@x.com", ExtractEmail("", nil, "c@x.com"))
	assert.Equal(t, "", ExtractEmail("", []string{""}, "U2xyz"))
}

func TestKeySet_RefreshOnUnknownKidRateLimited(t *testing.T) {
	first := rsaKey(t)
	rotated := rsaKey(t)
	ks := newKeyServer(t, publicJWK("k1", "RS256", &first.PublicKey))

	now := testNow
	set := ks.keySet(t, func() time.Time { return now })
	ctx := context.Background()

	_, err := set.Key(ctx, "k1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ks.fetches.Load())

	_, err = set.Key(ctx, "k1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ks.fetches.Load(), "known kid served from cache")

	ks.keys.Store([]jose.JSONWebKey{
		publicJWK("k1", "RS256", &first.PublicKey),
		publicJWK("k2", "RS256", &rotated.PublicKey),
	})

	now = now.Add(30 * time.Second)
	_, err = set.Key(ctx, "k2")
	assert.True(t, errors.Is(err, ErrUnknownKey))
	assert.EqualValues(t, 1, ks.fetches.Load(), "refresh suppressed within interval")

	now = now.Add(MinRefreshInterval)
	key, err := set.Key(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, &rotated.PublicKey, key)
	assert.EqualValues(t, 2, ks.fetches.Load())
}

func TestKeySet_SingleKeyWithoutKid(t *testing.T) {
	priv := rsaKey(t)
	ks := newKeyServer(t, publicJWK("k1", "RS256", &priv.PublicKey))
	set := ks.keySet(t, time.Now)

	key, err := set.Key(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, &priv.PublicKey, key)
}

func TestKeySet_FetchFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Options{Service: "jwks", HTTPClient: srv.Client()})
	set := NewKeySet(srv.URL, client, zaptest.NewLogger(t).Sugar())
	v := NewVerifier(set, testProject, WithClock(func() time.Time { return testNow }))

	priv := rsaKey(t)
	_, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, "k1", priv, validClaims()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
	assert.False(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestKeySet_OutageStaysUnavailableUntilRecovery(t *testing.T) {
	priv := rsaKey(t)
	var healthy atomic.Bool
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{publicJWK("k1", "RS256", &priv.PublicKey)}})
	}))
	defer srv.Close()

	now := testNow
	client := httpclient.New(httpclient.Options{Service: "jwks", HTTPClient: srv.Client()})
	set := NewKeySet(srv.URL, client, zaptest.NewLogger(t).Sugar())
	set.now = func() time.Time { return now }
	v := NewVerifier(set, testProject, WithClock(func() time.Time { return testNow }))
	token := sign(t, jwt.SigningMethodRS256, "k1", priv, validClaims())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := v.Verify(ctx, token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrServiceUnavailable), "request %d", i+1)
		assert.False(t, errors.Is(err, errors.ErrUnauthorized), "request %d", i+1)
		now = now.Add(10 * time.Second)
	}
	assert.EqualValues(t, 1, fetches.Load(), "failed fetch not retried within interval")

	healthy.Store(true)
	now = now.Add(MinRefreshInterval)
	claims, err := v.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.EqualValues(t, 2, fetches.Load())
}

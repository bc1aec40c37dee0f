package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/internal/httpclient"
	"github.com/teranos/moverdesk/logger"
)

// MinRefreshInterval bounds how often an unknown key id can trigger a fetch.
const MinRefreshInterval = time.Minute

// ErrUnknownKey is returned when a token names a key the provider does not publish.
var ErrUnknownKey = errors.New("unknown signing key")

// KeySet caches the identity provider's published signing keys (JWKS).
// Keys are fetched lazily and refetched when a token names an unknown key id,
// at most once per MinRefreshInterval.
type KeySet struct {
	url    string
	http   *httpclient.Client
	now    func() time.Time
	logger *zap.SugaredLogger

	mu          sync.Mutex
	keys        map[string]any
	lastAttempt time.Time
	lastErr     error // Failure of the last fetch, replayed until the next attempt
}

// NewKeySet creates a key set backed by url.
func NewKeySet(url string, client *httpclient.Client, log *zap.SugaredLogger) *KeySet {
	if log == nil {
		log = logger.ComponentLogger("auth")
	}
	return &KeySet{
		url:    url,
		http:   client,
		now:    time.Now,
		logger: log,
		keys:   map[string]any{},
	}
}

// Key returns the public key for kid. An empty kid resolves only when the
// set holds exactly one key.
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.lookup(kid); ok {
		return key, nil
	}

	now := k.now()
	if !k.lastAttempt.IsZero() && now.Sub(k.lastAttempt) < MinRefreshInterval {
		if k.lastErr != nil {
			return nil, k.lastErr
		}
		return nil, errors.Wrapf(ErrUnknownKey, "key id %q", kid)
	}
	k.lastAttempt = now

	keys, err := k.fetch(ctx)
	k.lastErr = err
	if err != nil {
		k.logger.Warnw("Signing key fetch failed", logger.FieldError, err)
		return nil, err
	}
	k.keys = keys

	if key, ok := k.lookup(kid); ok {
		return key, nil
	}
	return nil, errors.Wrapf(ErrUnknownKey, "key id %q", kid)
}

func (k *KeySet) lookup(kid string) (any, bool) {
	if kid == "" {
		if len(k.keys) != 1 {
			return nil, false
		}
		for _, key := range k.keys {
			return key, true
		}
	}
	key, ok := k.keys[kid]
	return key, ok
}

func (k *KeySet) fetch(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build key set request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.http.Do(ctx, req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "fetch key set"), errors.ErrServiceUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Mark(
			errors.Newf("key set endpoint returned status %d", resp.StatusCode),
			errors.ErrServiceUnavailable,
		)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(resp.Body, &set); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode key set"), errors.ErrServiceUnavailable)
	}

	keys := make(map[string]any, len(set.Keys))
	for _, jwk := range set.Keys {
		if !jwk.Valid() || !jwk.IsPublic() || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		keys[jwk.KeyID] = jwk.Key
	}

	k.logger.Debugw("Signing keys fetched", logger.FieldCount, len(keys))
	return keys, nil
}

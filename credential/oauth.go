package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/internal/httpclient"
)

// defaultLifetime is assumed when the provider omits expires_in.
const defaultLifetime = time.Hour

// OAuthConfig holds the refresh-token grant parameters.
type OAuthConfig struct {
	AccountsURL  string // e.g. https://accounts.zoho.com
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// OAuthExchanger performs the OAuth2 refresh-token grant against the
// provider's accounts host.
type OAuthExchanger struct {
	cfg    OAuthConfig
	client *httpclient.Client
}

// NewOAuthExchanger creates an exchanger using client for transport.
func NewOAuthExchanger(cfg OAuthConfig, client *httpclient.Client) *OAuthExchanger {
	return &OAuthExchanger{cfg: cfg, client: client}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
	Error       string      `json:"error"`
}

// Exchange posts the grant and parses {access_token, expires_in} or {error}.
// Parameters travel in the query string, which is how the provider documents
// the grant; the body is empty.
func (e *OAuthExchanger) Exchange(ctx context.Context) (Grant, error) {
	if e.cfg.ClientID == "" || e.cfg.ClientSecret == "" || e.cfg.RefreshToken == "" {
		return Grant{}, &ExchangeError{Payload: "client id, client secret and refresh token must be configured"}
	}

	params := url.Values{}
	params.Set("refresh_token", e.cfg.RefreshToken)
	params.Set("client_id", e.cfg.ClientID)
	params.Set("client_secret", e.cfg.ClientSecret)
	params.Set("grant_type", "refresh_token")

	endpoint := strings.TrimRight(e.cfg.AccountsURL, "/") + "/oauth/v2/token?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return Grant{}, errors.Wrap(err, "failed to build token request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(ctx, req)
	if err != nil {
		return Grant{}, err
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Grant{}, &ExchangeError{
			Payload:    truncate(string(resp.Body), 512),
			StatusCode: resp.StatusCode,
			Err:        errors.Wrap(err, "token response is not JSON"),
		}
	}

	if body.Error != "" || body.AccessToken == "" {
		return Grant{}, &ExchangeError{
			Payload:    truncate(string(resp.Body), 512),
			StatusCode: resp.StatusCode,
		}
	}

	lifetime := defaultLifetime
	if secs, err := body.ExpiresIn.Int64(); err == nil && secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}

	return Grant{AccessToken: body.AccessToken, ExpiresIn: lifetime}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

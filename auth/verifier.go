// Package auth verifies caller session tokens issued by the identity
// provider and carries the verified identity through the request context.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teranos/moverdesk/errors"
)

// Signing algorithms accepted for session tokens.
var validMethods = []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}

// clockSkew tolerated on exp and nbf.
const clockSkew = 30 * time.Second

// Claims is the verified caller identity.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time
}

// sessionClaims is the token payload the identity provider issues.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email    string   `json:"email,omitempty"`
	LoginIDs []string `json:"loginIds,omitempty"`
}

// KeyProvider resolves a signing key by key id.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (any, error)
}

// Verifier checks session token signatures and claims.
type Verifier struct {
	keys      KeyProvider
	projectID string
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock sets the time source used for exp and nbf checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier that accepts tokens whose issuer names projectID.
func NewVerifier(keys KeyProvider, projectID string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:      keys,
		projectID: projectID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses token, checks its signature against the provider's keys and
// validates expiry, not-before and issuer. Failures are marked
// errors.ErrUnauthorized unless the key set itself could not be fetched.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(validMethods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)

	var claims sessionClaims
	var keyErr error
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.Key(ctx, kid)
		keyErr = err
		return key, err
	})
	if keyErr != nil && errors.Is(keyErr, errors.ErrServiceUnavailable) {
		return nil, errors.Wrap(keyErr, "verify session token")
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "verify session token"), errors.ErrUnauthorized)
	}

	if v.projectID == "" || !strings.Contains(claims.Issuer, v.projectID) {
		return nil, errors.Mark(
			errors.Newf("session token issuer %q does not match project", claims.Issuer),
			errors.ErrUnauthorized,
		)
	}

	email := ExtractEmail(claims.Email, claims.LoginIDs, claims.Subject)
	if email == "" {
		return nil, errors.Mark(errors.New("session token carries no email"), errors.ErrUnauthorized)
	}

	out := &Claims{
		Subject: claims.Subject,
		Email:   email,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// ExtractEmail picks the caller email from a session payload: the email claim,
// then the first login id, then the subject when it looks like an address.
func ExtractEmail(email string, loginIDs []string, subject string) string {
	if e := strings.TrimSpace(email); e != "" {
		return e
	}
	if len(loginIDs) > 0 {
		if e := strings.TrimSpace(loginIDs[0]); e != "" {
			return e
		}
	}
	if strings.Contains(subject, "@") {
		return strings.TrimSpace(subject)
	}
	return ""
}

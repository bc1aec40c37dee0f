package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// ClaimsContextKey is the context key for the verified caller claims
const ClaimsContextKey contextKey = "auth_claims"

// TokenVerifier verifies a raw session token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Middleware provides HTTP authentication middleware
type Middleware struct {
	verifier TokenVerifier
	logger   *zap.SugaredLogger
}

// NewMiddleware creates auth middleware. A nil verifier disables
// verification: requests pass through and payload emails are trusted.
func NewMiddleware(verifier TokenVerifier, log *zap.SugaredLogger) *Middleware {
	if log == nil {
		log = logger.ComponentLogger("auth")
	}
	if verifier == nil {
		log.Warnw("Caller session verification is DISABLED; payload emails are trusted. Local development only.")
	}
	return &Middleware{verifier: verifier, logger: log}
}

// Enabled reports whether tokens are verified.
func (m *Middleware) Enabled() bool {
	return m.verifier != nil
}

// RequireAuth is middleware that requires a valid session token.
// If verification is disabled, it passes through all requests.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.verifier == nil {
			next(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeUnauthorized(w, "missing session token")
			return
		}

		claims, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			log := logger.FromContext(r.Context(), m.logger)
			if errors.Is(err, errors.ErrServiceUnavailable) {
				log.Errorw("Session key set unavailable", logger.FieldError, err)
				writeJSONError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "identity provider unavailable")
				return
			}
			log.Debugw("Token validation failed", logger.FieldError, err.Error())
			writeUnauthorized(w, "invalid session token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// extractToken reads the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// ClaimsFromContext returns the verified claims, or nil when the request was
// not verified.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsContextKey).(*Claims)
	return claims
}

// ResolveEmail returns the email a workflow should act for. With verified
// claims that is the session email, and a differing payload email is
// errors.ErrForbidden. Without claims the payload email is used as given.
func ResolveEmail(ctx context.Context, payloadEmail string) (string, error) {
	payloadEmail = strings.TrimSpace(payloadEmail)

	claims := ClaimsFromContext(ctx)
	if claims == nil {
		if payloadEmail == "" {
			return "", errors.NewInvalidRequestError("email is required")
		}
		return payloadEmail, nil
	}

	if payloadEmail != "" && !strings.EqualFold(payloadEmail, claims.Email) {
		return "", errors.Wrapf(errors.ErrForbidden, "payload email %s does not match session", payloadEmail)
	}
	return claims.Email, nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

package records

import (
	"encoding/json"
	"fmt"

	"github.com/teranos/moverdesk/errors"
)

// Outcomes callers branch on. They alias the shared sentinels so the HTTP
// layer classifies record store failures without importing this package.
var (
	ErrNotFound        = errors.ErrNotFound
	ErrUpstreamTimeout = errors.ErrTimeout
	ErrRateLimited     = errors.ErrRateLimited
)

// ErrCredentialRejected is returned when the provider refuses the service
// token. It is marked errors.ErrServiceUnavailable where it is raised.
var ErrCredentialRejected = errors.New("record store rejected the service credential")

// WriteRejectedError reports a patch or create the provider answered with a
// non-success application code. Details is the provider's raw body.
type WriteRejectedError struct {
	Operation  string // "patch" or "create"
	Target     string // report/id or form
	StatusCode int
	Code       int
	Details    json.RawMessage
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("record store rejected %s of %s (status %d, code %d)", e.Operation, e.Target, e.StatusCode, e.Code)
}

// ProviderError is a read the provider answered with an unexpected code.
type ProviderError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("record store error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("record store error (status %d, code %d)", e.StatusCode, e.Code)
}

// Package errors is the error toolkit for moverdesk.
//
// It re-exports github.com/cockroachdb/errors so every package wraps, marks and
// inspects errors the same way, and it owns the sentinel errors the HTTP layer
// maps onto status codes.
//
//	if err := store.Patch(ctx, report, id, fields); err != nil {
//	    return errors.Wrapf(err, "patch job %s", id)
//	}
//
//	if errors.Is(err, errors.ErrTimeout) {
//	    // answer 503
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// Operator-facing context. Hints and details never reach the HTTP response body.
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinels shared across packages. Domain packages wrap or Mark these so the
// server can classify a failure without knowing which collaborator produced it.
var (
	// ErrNotFound indicates a worker, job or record does not exist upstream
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the inbound payload was malformed
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates a missing or unverifiable caller session
	ErrUnauthorized = New("unauthorized")

	// ErrForbidden indicates a verified caller acting on someone else's behalf
	ErrForbidden = New("forbidden")

	// ErrConflict indicates a business-rule conflict such as a full roster
	ErrConflict = New("resource conflict")

	// ErrTimeout indicates an upstream call exceeded its deadline
	ErrTimeout = New("operation timed out")

	// ErrRateLimited indicates an upstream answered with a rate-limit response
	ErrRateLimited = New("rate limited")

	// ErrServiceUnavailable indicates a collaborator could not be reached or authenticated
	ErrServiceUnavailable = New("service unavailable")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsTimeout reports whether err is or wraps ErrTimeout.
func IsTimeout(err error) bool {
	return err != nil && Is(err, ErrTimeout)
}

// IsRateLimited reports whether err is or wraps ErrRateLimited.
func IsRateLimited(err error) bool {
	return err != nil && Is(err, ErrRateLimited)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teranos/moverdesk/credential"
	"github.com/teranos/moverdesk/crew"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/geocode"
	"github.com/teranos/moverdesk/records"
)

// Error discriminators returned in the "error" field.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeWorkerNotFound     = "WORKER_NOT_FOUND"
	CodeJobNotFound        = "JOB_NOT_FOUND"
	CodeJobFull            = "JobFull"
	CodeDistanceFail       = "DISTANCE_FAIL"
	CodeZohoReject         = "ZOHO_REJECT"
	CodeWriteRejected      = "WRITE_REJECTED"
	CodeMissingAddress     = "MISSING_ADDRESS"
	CodeAddressNotResolved = "ADDRESS_NOT_RESOLVED"
	CodeUpstreamBusy       = "UPSTREAM_BUSY"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeServiceAuthFailed  = "SERVICE_AUTH_FAILED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error    string          `json:"error"`
	Message  string          `json:"message,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
	Distance string          `json:"distance,omitempty"`
}

// rejectPolicy is how a route reports a provider write rejection.
type rejectPolicy struct {
	Status int
	Code   string
}

var (
	defaultRejects = rejectPolicy{Status: http.StatusInternalServerError, Code: CodeWriteRejected}
	assignRejects  = defaultRejects
	clockInRejects = rejectPolicy{Status: http.StatusBadRequest, Code: CodeZohoReject}
)

// errorResponse maps a workflow error to a status and body. Specific
// sentinels are checked before the generic upstream ones.
func errorResponse(err error, rejects rejectPolicy) (int, errorBody) {
	var distErr *crew.DistanceError
	if errors.As(err, &distErr) {
		return http.StatusBadRequest, errorBody{
			Error:    CodeDistanceFail,
			Message:  "You are not close enough to the job site.",
			Distance: fmt.Sprintf("%.2f", distErr.DistanceMiles),
		}
	}

	var rejected *records.WriteRejectedError
	if errors.As(err, &rejected) {
		return rejects.Status, errorBody{
			Error:   rejects.Code,
			Message: "The record store rejected the update.",
			Details: rejected.Details,
		}
	}

	switch {
	case errors.Is(err, crew.ErrJobFull):
		return http.StatusConflict, errorBody{Error: CodeJobFull, Message: "This job is already full."}
	case errors.Is(err, crew.ErrWorkerNotFound):
		return http.StatusNotFound, errorBody{Error: CodeWorkerNotFound, Message: "Mover not found."}
	case errors.Is(err, crew.ErrJobNotFound):
		return http.StatusNotFound, errorBody{Error: CodeJobNotFound, Message: "Job not found."}
	case errors.Is(err, crew.ErrMissingAddress):
		return http.StatusUnprocessableEntity, errorBody{Error: CodeMissingAddress, Message: "Job has no Origination Address."}
	case errors.Is(err, geocode.ErrAddressNotResolved):
		return http.StatusUnprocessableEntity, errorBody{Error: CodeAddressNotResolved, Message: "Could not locate the job address."}
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest, errorBody{Error: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: CodeUnauthorized, Message: "Invalid session."}
	case errors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: CodeForbidden, Message: "Email does not match the signed-in user."}
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: CodeUpstreamBusy, Message: "Too many requests, please try again shortly."}
	case errors.Is(err, credential.ErrExchangeFailed):
		return http.StatusServiceUnavailable, errorBody{Error: CodeServiceAuthFailed, Message: "Upstream authorization failed."}
	case errors.Is(err, errors.ErrTimeout):
		return http.StatusServiceUnavailable, errorBody{Error: CodeUpstreamTimeout, Message: "Upstream service timed out."}
	case errors.Is(err, errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: CodeServiceUnavailable, Message: "Upstream service unavailable."}
	default:
		return http.StatusInternalServerError, errorBody{Error: CodeInternal, Message: "Internal server error."}
	}
}

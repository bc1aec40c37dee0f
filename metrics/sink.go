// Package metrics records service and upstream health for the /metrics endpoint.
package metrics

import (
	"context"
	"net"
	"time"

	"github.com/teranos/moverdesk/errors"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations must not block or propagate errors.
type Sink interface {
	// Inbound HTTP
	RequestCompleted(route string, status int, duration time.Duration)

	// Outbound calls to the record store, geocoder, token exchange and key set
	UpstreamCallCompleted(service, statusClass string, duration time.Duration)
	RateLimitWaited(service string, wait time.Duration)

	// Service credential exchange
	TokenExchange(outcome string, attempts int)

	// Workflow results (assign, clock_in, check_status, payouts, calendar)
	WorkflowOutcome(workflow, outcome string)
}

// Outcome constants for TokenExchange and WorkflowOutcome.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected" // Caller-correctable: job full, distance, not found
)

// StatusClass constants for UpstreamCallCompleted.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassRateLimited     = "rate_limited"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and transport error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, errors.ErrRateLimited) {
			return StatusClassRateLimited
		}
		if errors.Is(err, errors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return StatusClassTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				return StatusClassTimeout
			}
			return StatusClassConnectionError
		}
		return StatusClassOtherError
	}

	switch {
	case statusCode == 429:
		return StatusClassRateLimited
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}

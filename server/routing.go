package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/moverdesk/logger"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Legacy paths kept for callers still pointing at the serverless function names.
const legacyPrefix = "/.netlify/functions/"

// routes builds the HTTP handler tree
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	handle := func(route string, h http.HandlerFunc, paths ...string) {
		wrapped := s.requestMiddleware(route, s.corsMiddleware(h))
		for _, p := range paths {
			mux.HandleFunc(p, wrapped)
		}
	}

	handle("assign", s.auth.RequireAuth(s.HandleAssign), "/api/assign", legacyPrefix+"add-mover-to-job")
	handle("clock_in", s.auth.RequireAuth(s.HandleClockIn), "/api/clock-in", legacyPrefix+"clock-in")
	handle("payouts", s.auth.RequireAuth(s.HandlePayouts), "/api/payouts", legacyPrefix+"get-payouts")
	handle("calendar", s.auth.RequireAuth(s.HandleCalendar), "/api/calendar", legacyPrefix+"get-calendar")
	handle("health", s.HandleHealth, "/health")

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// corsMiddleware adds permissive CORS headers for the embedding iframe host
// and answers preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// requestMiddleware assigns a request id, scopes the logger to it and
// reports the request to the metrics sink.
func (s *Server) requestMiddleware(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))

		elapsed := time.Since(start)
		s.sink.RequestCompleted(route, rec.status, elapsed)
		logger.FromContext(ctx, s.logger).Debugw("Request completed",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, elapsed.Milliseconds(),
		)
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

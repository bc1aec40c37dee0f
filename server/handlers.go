package server

// HTTP handlers for the crew workflows:
// - Assignment to a job roster (HandleAssign)
// - Geofenced clock-in and status check (HandleClockIn)
// - Payout report and job calendar (HandlePayouts, HandleCalendar)
// - Health checks (HandleHealth)

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/auth"
	"github.com/teranos/moverdesk/crew"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/records"
	"github.com/teranos/moverdesk/version"
)

// Clock-in actions.
const (
	actionCheckStatus = "check_status"
	actionClockIn     = "clock_in"
)

type assignRequest struct {
	JobID flexString `json:"jobId"`
	Email string     `json:"email"`
}

type clockInRequest struct {
	JobID     flexString `json:"jobId"`
	UserEmail string     `json:"userEmail"`
	UserLat   flexFloat  `json:"userLat"`
	UserLon   flexFloat  `json:"userLon"`
	UserIP    string     `json:"userIp"`
	PIN       flexString `json:"pin"`
	Action    string     `json:"action"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type clockInResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Distance string `json:"distance,omitempty"`
}

type statusResponse struct {
	ClockedIn bool `json:"clockedIn"`
}

type dataResponse struct {
	Data []records.Record `json:"data"`
}

// HandleAssign adds the caller to a job's roster
func (s *Server) HandleAssign(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req assignRequest
	if err := readJSON(r, &req); err != nil {
		s.writeWorkflowError(w, r, err, assignRejects)
		return
	}

	email, err := auth.ResolveEmail(r.Context(), req.Email)
	if err != nil {
		s.writeWorkflowError(w, r, err, assignRejects)
		return
	}

	out, err := s.crew.AssignWorkerToJob(r.Context(), string(req.JobID), email)
	if err != nil {
		s.writeWorkflowError(w, r, err, assignRejects)
		return
	}

	_ = writeJSON(w, http.StatusOK, successResponse{Success: true, Message: out.Message})
}

// HandleClockIn checks clock-in status or records a clock-in
func (s *Server) HandleClockIn(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req clockInRequest
	if err := readJSON(r, &req); err != nil {
		s.writeWorkflowError(w, r, err, clockInRejects)
		return
	}

	email, err := auth.ResolveEmail(r.Context(), req.UserEmail)
	if err != nil {
		s.writeWorkflowError(w, r, err, clockInRejects)
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case actionCheckStatus:
		clockedIn, err := s.crew.CheckStatus(r.Context(), string(req.JobID), email)
		if err != nil {
			s.writeWorkflowError(w, r, err, clockInRejects)
			return
		}
		_ = writeJSON(w, http.StatusOK, statusResponse{ClockedIn: clockedIn})

	case "", actionClockIn:
		if !req.UserLat.Set || !req.UserLon.Set {
			s.writeWorkflowError(w, r, errors.NewInvalidRequestError("userLat and userLon are required"), clockInRejects)
			return
		}

		out, err := s.crew.ClockIn(r.Context(), crew.ClockInRequest{
			JobID:       string(req.JobID),
			WorkerEmail: email,
			Position:    geotime.Point{Lat: req.UserLat.Value, Lon: req.UserLon.Value},
			SourceIP:    sourceIP(r, req.UserIP),
			PIN:         string(req.PIN),
		})
		if err != nil {
			s.writeWorkflowError(w, r, err, clockInRejects)
			return
		}
		resp := clockInResponse{Success: true, Message: out.Message}
		if !out.AlreadyClockedIn {
			resp.Distance = fmt.Sprintf("%.2f", out.DistanceMiles)
		}
		_ = writeJSON(w, http.StatusOK, resp)

	default:
		s.writeWorkflowError(w, r, errors.NewInvalidRequestError("unknown action %q", req.Action), clockInRejects)
	}
}

// HandlePayouts lists the caller's payouts, newest first
func (s *Server) HandlePayouts(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	email, err := auth.ResolveEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		s.writeWorkflowError(w, r, err, defaultRejects)
		return
	}

	rows, err := s.crew.Payouts(r.Context(), email)
	if err != nil {
		s.writeWorkflowError(w, r, err, defaultRejects)
		return
	}
	_ = writeJSON(w, http.StatusOK, dataResponse{Data: rows})
}

// HandleCalendar lists jobs, optionally narrowed by ?id=
func (s *Server) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	jobs, err := s.crew.Calendar(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		s.writeWorkflowError(w, r, err, defaultRejects)
		return
	}
	_ = writeJSON(w, http.StatusOK, dataResponse{Data: jobs})
}

// HandleHealth serves health check endpoint with version info
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": info.Version,
		"commit":  info.Short(),
	})
}

// writeWorkflowError maps err to a response. Server-side failures are logged
// with full detail; nothing beyond the mapped body reaches the caller.
func (s *Server) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error, rejects rejectPolicy) {
	status, body := errorResponse(err, rejects)

	log := logger.FromContext(r.Context(), s.logger).With(
		logger.FieldPath, r.URL.Path,
		logger.FieldStatus, status,
		logger.FieldErrorCode, body.Error,
	)
	if status >= http.StatusInternalServerError || body.Error == CodeZohoReject {
		log.Errorw("Request failed", logger.FieldError, err.Error(), "detail", fmt.Sprintf("%+v", err))
	} else {
		log.Infow("Request rejected", logger.FieldError, err.Error())
	}

	_ = writeJSON(w, status, body)
}

// sourceIP prefers the caller-reported address, then the first forwarded
// hop, then the connection's remote address.
func sourceIP(r *http.Request, reported string) string {
	if ip := strings.TrimSpace(reported); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return ""
}

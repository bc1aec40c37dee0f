package crew

import (
	"context"
	"strings"

	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/records"
)

// Clock-in messages shown to the worker.
const (
	MessageClockedIn        = "Clocked in successfully!"
	MessageAlreadyClockedIn = "You are already clocked in for this job."
)

// ClockInRequest carries the caller-reported facts of a clock-in attempt.
type ClockInRequest struct {
	JobID       string
	WorkerEmail string
	Position    geotime.Point
	SourceIP    string // Default "Unknown"
	PIN         string // Default from Config.DefaultPIN
}

// ClockInOutcome is the result of a recorded clock-in. AlreadyClockedIn is
// set when an earlier check-in exists; nothing is written and DistanceMiles is
// zero in that case.
type ClockInOutcome struct {
	AlreadyClockedIn bool
	DistanceMiles    float64
	Message          string
}

// CheckStatus reports whether the worker already has a check-in for the job.
// A check-in matches on worker id, or on display name when the record carries
// no id.
func (s *Service) CheckStatus(ctx context.Context, jobID, email string) (clockedIn bool, err error) {
	ctx = logger.WithWorkflow(ctx, WorkflowCheckStatus)
	defer func() { s.finish(ctx, WorkflowCheckStatus, err) }()

	jobID, err = normalizeJobID(jobID)
	if err != nil {
		return false, err
	}

	worker, err := s.resolveWorker(ctx, email)
	if err != nil {
		return false, err
	}

	return s.hasCheckIn(ctx, jobID, worker)
}

func (s *Service) hasCheckIn(ctx context.Context, jobID string, worker records.Worker) (bool, error) {
	recs, err := s.store.FindByField(ctx, s.res.CheckInsReport, records.FieldCheckInJob, jobID)
	if err != nil {
		return false, errors.Wrap(err, "list check-ins")
	}

	for _, rec := range recs {
		if checkInBelongsTo(rec, worker) {
			return true, nil
		}
	}
	return false, nil
}

func checkInBelongsTo(rec records.Record, worker records.Worker) bool {
	id, name := records.CheckInWorker(rec)
	if id != "" {
		return id == worker.ID
	}
	name = strings.TrimSpace(name)
	return name != "" && strings.EqualFold(name, strings.TrimSpace(worker.DisplayName))
}

// ClockIn records a check-in when the worker is within the radius of the
// job's origin address. The job's origin is geocoded on every call.
//
// A worker with an existing check-in for the job succeeds without a second
// write. The lookup is best-effort: two concurrent clock-ins can both pass
// it, and a failed lookup is logged and does not block the clock-in.
func (s *Service) ClockIn(ctx context.Context, req ClockInRequest) (out ClockInOutcome, err error) {
	ctx = logger.WithWorkflow(ctx, WorkflowClockIn)
	defer func() { s.finish(ctx, WorkflowClockIn, err) }()

	jobID, err := normalizeJobID(req.JobID)
	if err != nil {
		return ClockInOutcome{}, err
	}
	if !req.Position.Valid() {
		return ClockInOutcome{}, errors.NewInvalidRequestError("position %s is not a valid coordinate", req.Position)
	}

	worker, err := s.resolveWorker(ctx, req.WorkerEmail)
	if err != nil {
		return ClockInOutcome{}, err
	}

	exists, err := s.hasCheckIn(ctx, jobID, worker)
	switch {
	case err != nil:
		logger.FromContext(ctx, s.logger).Warnw("Existing check-in lookup failed",
			logger.FieldJobID, jobID,
			logger.FieldWorkerID, worker.ID,
			logger.FieldError, err,
		)
	case exists:
		logger.FromContext(ctx, s.logger).Infow("Worker already clocked in",
			logger.FieldJobID, jobID,
			logger.FieldWorkerID, worker.ID,
		)
		return ClockInOutcome{AlreadyClockedIn: true, Message: MessageAlreadyClockedIn}, nil
	}

	rec, err := s.store.GetByID(ctx, s.res.JobsReport, jobID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return ClockInOutcome{}, errors.Wrapf(ErrJobNotFound, "no job with id %s", jobID)
		}
		return ClockInOutcome{}, errors.Wrap(err, "look up job")
	}

	address := records.DisplayText(rec[records.FieldJobOrigin])
	if address == "" {
		return ClockInOutcome{}, errors.Wrapf(ErrMissingAddress, "job %s", jobID)
	}

	jobPos, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return ClockInOutcome{}, errors.Wrapf(err, "locate job %s", jobID)
	}

	distance := geotime.Distance(req.Position, jobPos)
	log := logger.FromContext(ctx, s.logger).With(
		logger.FieldJobID, jobID,
		logger.FieldWorkerID, worker.ID,
		logger.FieldDistance, distance,
	)

	if !geotime.WithinRadius(distance, s.radius) {
		log.Infow("Clock-in outside radius", "radius_miles", s.radius)
		return ClockInOutcome{}, &DistanceError{DistanceMiles: distance, RadiusMiles: s.radius}
	}

	checkIn := records.CheckIn{
		JobID:          jobID,
		WorkerID:       worker.ID,
		ClockInTime:    s.now(),
		WorkerPosition: req.Position,
		JobPosition:    jobPos,
		DistanceMiles:  distance,
		SourceIP:       strings.TrimSpace(req.SourceIP),
		PIN:            strings.TrimSpace(req.PIN),
	}
	if checkIn.SourceIP == "" {
		checkIn.SourceIP = "Unknown"
	}
	if checkIn.PIN == "" {
		checkIn.PIN = s.defaultPIN
	}

	if err := s.store.Create(ctx, s.res.CheckInForm, checkIn.Fields(s.loc)); err != nil {
		return ClockInOutcome{}, errors.Wrapf(err, "record check-in for job %s", jobID)
	}

	log.Infow("Clock-in recorded")
	return ClockInOutcome{DistanceMiles: distance, Message: MessageClockedIn}, nil
}

// Package crew implements the mover workflows: joining a job's roster,
// geofenced clock-in and its status check, the payout report and the job
// calendar feed.
//
// Every workflow is a strictly ordered sequence of record store and geocoder
// calls with one decision in the middle and at most one write at the end.
// Nothing is held between requests. The store offers no transactions or
// revisions, so two concurrent assignments to the same job can both pass the
// capacity check before either writes; that window is accepted.
package crew

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/metrics"
	"github.com/teranos/moverdesk/records"
)

// Workflow names used in logs and metrics.
const (
	WorkflowAssign      = "assign"
	WorkflowClockIn     = "clock_in"
	WorkflowCheckStatus = "check_status"
	WorkflowPayouts     = "payouts"
	WorkflowCalendar    = "calendar"
)

// RecordStore is the subset of records.Client the workflows use.
type RecordStore interface {
	FindByField(ctx context.Context, report, field string, value any) ([]records.Record, error)
	FindByCriteria(ctx context.Context, report, criteria string) ([]records.Record, error)
	GetByID(ctx context.Context, report, id string) (records.Record, error)
	Patch(ctx context.Context, report, id string, fields map[string]any) error
	Create(ctx context.Context, form string, fields map[string]any) error
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geotime.Point, error)
}

// Resources names the reports and forms each workflow targets.
type Resources struct {
	MoversReport   string
	JobsReport     string
	CheckInsReport string
	PayoutsReport  string
	CheckInForm    string
}

// Config configures a Service.
type Config struct {
	Store       RecordStore
	Geocoder    Geocoder
	Resources   Resources
	RadiusMiles float64        // Default geotime.DefaultRadiusMiles
	Location    *time.Location // Business timezone for check-in timestamps
	DefaultPIN  string         // Default "0000"
	Now         func() time.Time
	Sink        metrics.Sink
	Logger      *zap.SugaredLogger
}

// Service runs the crew workflows.
type Service struct {
	store      RecordStore
	geocoder   Geocoder
	res        Resources
	radius     float64
	loc        *time.Location
	defaultPIN string
	now        func() time.Time
	sink       metrics.Sink
	logger     *zap.SugaredLogger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	s := &Service{
		store:      cfg.Store,
		geocoder:   cfg.Geocoder,
		res:        cfg.Resources,
		radius:     cfg.RadiusMiles,
		loc:        cfg.Location,
		defaultPIN: cfg.DefaultPIN,
		now:        cfg.Now,
		sink:       metrics.OrNoop(cfg.Sink),
		logger:     cfg.Logger,
	}
	if s.radius <= 0 {
		s.radius = geotime.DefaultRadiusMiles
	}
	if s.defaultPIN == "" {
		s.defaultPIN = "0000"
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = logger.ComponentLogger("crew")
	}
	return s
}

// RadiusMiles returns the clock-in radius in effect.
func (s *Service) RadiusMiles() float64 {
	return s.radius
}

// resolveWorker finds the worker record for email.
func (s *Service) resolveWorker(ctx context.Context, email string) (records.Worker, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return records.Worker{}, errors.NewInvalidRequestError("email is required")
	}

	recs, err := s.store.FindByField(ctx, s.res.MoversReport, records.FieldWorkerEmail, email)
	if err != nil {
		return records.Worker{}, errors.Wrap(err, "look up worker")
	}
	if len(recs) == 0 {
		return records.Worker{}, errors.Wrapf(ErrWorkerNotFound, "no worker with email %s", email)
	}

	worker, err := records.ParseWorker(recs[0])
	if err != nil {
		return records.Worker{}, errors.Wrapf(err, "worker record for %s", email)
	}
	return worker, nil
}

// finish records the workflow outcome and logs failures.
func (s *Service) finish(ctx context.Context, workflow string, err error) {
	log := logger.FromContext(ctx, s.logger)
	switch {
	case err == nil:
		s.sink.WorkflowOutcome(workflow, metrics.OutcomeSuccess)
	case IsCallerCorrectable(err):
		s.sink.WorkflowOutcome(workflow, metrics.OutcomeRejected)
		log.Infow("Workflow rejected", logger.FieldWorkflow, workflow, logger.FieldError, err.Error())
	default:
		s.sink.WorkflowOutcome(workflow, metrics.OutcomeFailed)
		log.Errorw("Workflow failed", logger.FieldWorkflow, workflow, logger.FieldError, err)
	}
}

func normalizeJobID(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", errors.NewInvalidRequestError("jobId is required")
	}
	if records.DigitsOnly(jobID) != jobID {
		return "", errors.NewInvalidRequestError("jobId must be numeric, got %q", jobID)
	}
	return jobID, nil
}

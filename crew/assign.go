package crew

import (
	"context"
	"slices"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/records"
)

// Assignment messages shown to the worker.
const (
	MessageAlreadyAssigned = "You are already assigned to this job."
	MessageAssigned        = "Added to job"
)

// AssignOutcome is the result of a successful assignment request.
type AssignOutcome struct {
	AlreadyAssigned bool
	Message         string
}

// AssignWorkerToJob adds the worker identified by email to the job's roster.
//
// Re-assigning a worker already on the roster succeeds without a write. A
// job whose roster has reached its required worker count fails with
// ErrJobFull and is left unchanged.
func (s *Service) AssignWorkerToJob(ctx context.Context, jobID, email string) (out AssignOutcome, err error) {
	ctx = logger.WithWorkflow(ctx, WorkflowAssign)
	defer func() { s.finish(ctx, WorkflowAssign, err) }()

	jobID, err = normalizeJobID(jobID)
	if err != nil {
		return AssignOutcome{}, err
	}

	worker, err := s.resolveWorker(ctx, email)
	if err != nil {
		return AssignOutcome{}, err
	}

	job, err := s.findJob(ctx, jobID)
	if err != nil {
		return AssignOutcome{}, err
	}

	log := logger.FromContext(ctx, s.logger).With(
		logger.FieldJobID, job.ID,
		logger.FieldWorkerID, worker.ID,
	)

	if slices.Contains(job.AssignedWorkerIDs, worker.ID) {
		log.Infow("Worker already on roster")
		return AssignOutcome{AlreadyAssigned: true, Message: MessageAlreadyAssigned}, nil
	}

	if len(job.AssignedWorkerIDs) >= job.RequiredWorkerCount {
		return AssignOutcome{}, errors.Wrapf(ErrJobFull, "job %s has %d of %d workers",
			job.ID, len(job.AssignedWorkerIDs), job.RequiredWorkerCount)
	}

	roster := append(slices.Clone(job.AssignedWorkerIDs), worker.ID)
	if err := s.store.Patch(ctx, s.res.JobsReport, job.ID, map[string]any{
		records.FieldJobRoster: roster,
	}); err != nil {
		return AssignOutcome{}, errors.Wrapf(err, "add worker %s to job %s", worker.ID, job.ID)
	}

	log.Infow("Worker added to roster", logger.FieldCount, len(roster))
	return AssignOutcome{Message: MessageAssigned}, nil
}

// findJob looks the job up by id through a filtered list, the same read the
// roster write is based on.
func (s *Service) findJob(ctx context.Context, jobID string) (records.Job, error) {
	recs, err := s.store.FindByField(ctx, s.res.JobsReport, records.FieldID, records.ID(jobID))
	if err != nil {
		return records.Job{}, errors.Wrap(err, "look up job")
	}
	if len(recs) == 0 {
		return records.Job{}, errors.Wrapf(ErrJobNotFound, "no job with id %s", jobID)
	}

	job, err := records.ParseJob(recs[0])
	if err != nil {
		return records.Job{}, errors.Wrapf(err, "job record %s", jobID)
	}
	return job, nil
}

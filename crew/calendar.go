package crew

import (
	"context"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/records"
)

// Calendar lists jobs for the calendar view. A non-empty id, stripped to its
// digits, narrows the list to that job.
func (s *Service) Calendar(ctx context.Context, id string) (jobs []records.Record, err error) {
	ctx = logger.WithWorkflow(ctx, WorkflowCalendar)
	defer func() { s.finish(ctx, WorkflowCalendar, err) }()

	if digits := records.DigitsOnly(id); digits != "" {
		jobs, err = s.store.FindByField(ctx, s.res.JobsReport, records.FieldID, records.ID(digits))
	} else {
		jobs, err = s.store.FindByCriteria(ctx, s.res.JobsReport, "")
	}
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	return jobs, nil
}

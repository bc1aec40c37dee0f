package crew

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/records"
)

// jobDateLayouts are the date renderings the payouts report has been seen
// to use.
var jobDateLayouts = []string{
	"02-Jan-2006",
	"02-Jan-2006 15:04:05",
	"01-02-2006",
	"01/02/2006",
	"2006-01-02",
	time.RFC3339,
}

// Payouts returns the caller's payout rows, newest job first. A caller with
// no worker record gets an empty list.
func (s *Service) Payouts(ctx context.Context, email string) (rows []records.Record, err error) {
	ctx = logger.WithWorkflow(ctx, WorkflowPayouts)
	defer func() { s.finish(ctx, WorkflowPayouts, err) }()

	worker, err := s.resolveWorker(ctx, email)
	if errors.Is(err, ErrWorkerNotFound) {
		return []records.Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err = s.store.FindByField(ctx, s.res.PayoutsReport, records.FieldPayoutWorker, records.ID(worker.ID))
	if err != nil {
		return nil, errors.Wrap(err, "list payouts")
	}

	SortByJobDateDesc(rows)
	return rows, nil
}

// SortByJobDateDesc orders rows by Job_Date, newest first. Rows whose date
// cannot be read keep their relative order after the dated ones.
func SortByJobDateDesc(rows []records.Record) {
	dates := make([]time.Time, len(rows))
	for i, row := range rows {
		dates[i] = parseJobDate(records.DisplayText(row[records.FieldPayoutDate]))
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		da, db := dates[idx[a]], dates[idx[b]]
		if da.IsZero() || db.IsZero() {
			return !da.IsZero() && db.IsZero()
		}
		return da.After(db)
	})

	sorted := make([]records.Record, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
}

func parseJobDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range jobDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

package crew

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/records"
)

var testResources = Resources{
	MoversReport:   "All_Movers",
	JobsReport:     "Proposal_Contract_Report",
	CheckInsReport: "Mover_Check_In_Report",
	PayoutsReport:  "alldata",
	CheckInForm:    "Mover_Check_In",
}

type patchCall struct {
	Report string
	ID     string
	Fields map[string]any
}

type createCall struct {
	Form   string
	Fields map[string]any
}

// fakeStore keeps reports in memory and matches FindByField on the rendered
// field value. Creates on the check-in form land in the check-ins report.
type fakeStore struct {
	mu        sync.Mutex
	reports   map[string][]records.Record
	patches   []patchCall
	creates   []createCall
	queries   []string
	patchErr  error
	createErr error
	findErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{reports: map[string][]records.Record{}}
}

func (f *fakeStore) add(report string, rec records.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[report] = append(f.reports[report], rec)
}

func (f *fakeStore) FindByField(ctx context.Context, report, field string, value any) ([]records.Record, error) {
	criteria, err := records.Criteria(field, value)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, report+" "+criteria)
	if f.findErr != nil {
		return nil, f.findErr
	}

	want := renderValue(value)
	out := []records.Record{}
	for _, rec := range f.reports[report] {
		if renderValue(rec[field]) == want {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) FindByCriteria(ctx context.Context, report, criteria string) ([]records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, report+" "+criteria)
	if f.findErr != nil {
		return nil, f.findErr
	}
	return append([]records.Record{}, f.reports[report]...), nil
}

func (f *fakeStore) GetByID(ctx context.Context, report, id string) (records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.reports[report] {
		if records.IDString(rec[records.FieldID]) == id {
			return rec, nil
		}
	}
	return nil, errors.Wrapf(records.ErrNotFound, "record %s not found in %s", id, report)
}

func (f *fakeStore) Patch(ctx context.Context, report, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patchCall{Report: report, ID: id, Fields: fields})
	if f.patchErr != nil {
		return f.patchErr
	}
	for _, rec := range f.reports[report] {
		if records.IDString(rec[records.FieldID]) != id {
			continue
		}
		for k, v := range fields {
			if ids, ok := v.([]string); ok {
				v = append([]string{}, ids...)
			}
			rec[k] = v
		}
		return nil
	}
	return errors.Wrapf(records.ErrNotFound, "record %s not found in %s", id, report)
}

func (f *fakeStore) Create(ctx context.Context, form string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{Form: form, Fields: fields})
	if f.createErr != nil {
		return f.createErr
	}
	if form == testResources.CheckInForm {
		rec := records.Record{}
		for k, v := range fields {
			rec[k] = v
		}
		f.reports[testResources.CheckInsReport] = append(f.reports[testResources.CheckInsReport], rec)
	}
	return nil
}

func renderValue(v any) string {
	switch t := v.(type) {
	case records.ID:
		return string(t)
	case json.Number:
		return t.String()
	default:
		return records.DisplayText(t)
	}
}

type fakeGeocoder struct {
	mu        sync.Mutex
	positions map[string]geotime.Point
	err       error
	queries   []string
}

func (g *fakeGeocoder) Geocode(ctx context.Context, address string) (geotime.Point, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, address)
	if g.err != nil {
		return geotime.Point{}, g.err
	}
	p, ok := g.positions[address]
	if !ok {
		return geotime.Point{}, errors.New("no fake position for " + address)
	}
	return p, nil
}

package crew

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/records"
)

func addJob(store *fakeStore, id string, capacity any, roster any) records.Record {
	rec := records.Record{
		records.FieldID:          id,
		records.FieldJobCapacity: capacity,
		records.FieldJobRoster:   roster,
		records.FieldJobOrigin:   "123 Main St",
	}
	store.add(testResources.JobsReport, rec)
	return rec
}

func TestAssign_AddsWorker(t *testing.T) {
	store := newFakeStore()
	addWorker(store, "3001", "jane@example.com", "Jane Doe")
	addJob(store, "42", "3", []any{map[string]any{"ID": "2001", "display_value": "Sam"}})
	s := newTestService(t, store, &fakeGeocoder{}, nil)

	out, err := s.AssignWorkerToJob(context.Background(), "42", "jane@example.com")
	require.NoError(t, err)
	assert.False(t, out.AlreadyAssigned)
	assert.Equal(t, MessageAssigned, out.Message)

	require.Len(t, store.patches, 1)
	assert.Equal(t, testResources.JobsReport, store.patches[0].Report)
	assert.Equal(t, "42", store.patches[0].ID)
	assert.Equal(t, map[string]any{records.FieldJobRoster: []string{"2001", "3001"}}, store.patches[0].Fields)

	assert.Contains(t, store.queries, testResources.JobsReport+" (ID == 42)")
}

func TestAssign_IdempotentReassignment(t *testing.T) {
	store := newFakeStore()
	addWorker(store, "3001", "jane@example.com", "Jane Doe")
	job := addJob(store, "42", "3", nil)
	s := newTestService(t, store, &fakeGeocoder{}, nil)
	ctx := context.Background()

	first, err := s.AssignWorkerToJob(ctx, "42", "jane@example.com")
	require.NoError(t, err)
	assert.False(t, first.AlreadyAssigned)

	second, err := s.AssignWorkerToJob(ctx, "42", "jane@example.com")
	require.NoError(t, err)
	assert.True(t, second.AlreadyAssigned)
	assert.Equal(t, MessageAlreadyAssigned, second.Message)

	assert.Len(t, store.patches, 1)
	assert.Equal(t, []string{"3001"}, records.IDList(job[records.FieldJobRoster]))
}

func TestAssign_CapacityEnforcement(t *testing.T) {
	store := newFakeStore()
	addWorker(store, "3001", "a@example.com", "A")
	addWorker(store, "3002", "b@example.com", "B")
	addWorker(store, "3003", "c@example.com", "C")
	job := addJob(store, "42", json.Number("2"), []any{})
	s := newTestService(t, store, &fakeGeocoder{}, nil)
	ctx := context.Background()

	_, err := s.AssignWorkerToJob(ctx, "42", "a@example.com")
	require.NoError(t, err)
	_, err = s.AssignWorkerToJob(ctx, "42", "b@example.com")
	require.NoError(t, err)
	_, err = s.AssignWorkerToJob(ctx, "42", "c@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobFull))
	assert.Contains(t, err.Error(), "2 of 2")

	assert.Equal(t, []string{"3001", "3002"}, records.IDList(job[records.FieldJobRoster]))
	assert.Len(t, store.patches, 2)
}

func TestAssign_DuplicateRosterEntriesCountTowardCapacity(t *testing.T) {
	store := newFakeStore()
	addWorker(store, "3001", "a@example.com", "A")
	addWorker(store, "3003", "c@example.com", "C")
	job := addJob(store, "42", "2", []any{"3001", "3001"})
	s := newTestService(t, store, &fakeGeocoder{}, nil)

	_, err := s.AssignWorkerToJob(context.Background(), "42", "c@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobFull))
	assert.Empty(t, store.patches)
	assert.Equal(t, []string{"3001", "3001"}, records.IDList(job[records.FieldJobRoster]))

	out, err := s.AssignWorkerToJob(context.Background(), "42", "a@example.com")
	require.NoError(t, err)
	assert.True(t, out.AlreadyAssigned)
}

func TestAssign_AlreadyAssignedWinsOverFull(t *testing.T) {
	store := newFakeStore()
	addWorker(store, "3001", "jane@example.com", "Jane Doe")
	addJob(store, "42", "1", "3001")
	s := newTestService(t, store, &fakeGeocoder{}, nil)

	out, err := s.AssignWorkerToJob(context.Background(), "42", "jane@example.com")
	require.NoError(t, err)
	assert.True(t, out.AlreadyAssigned)
	assert.Empty(t, store.patches)
}

func TestAssign_RosterShapes(t *testing.T) {
	tests := []struct {
		name   string
		roster any
		want   []string
	}{
		{"embedded objects", []any{map[string]any{"ID": "2001"}, map[string]any{"ID": "2002"}}, []string{"2001", "2002", "3001"}},
		{"bare ids", []any{"2001", json.Number("2002")}, []string{"2001", "2002", "3001"}},
		{"delimited string", "2001, 2002", []string{"2001", "2002", "3001"}},
		{"duplicate entries preserved", "2001,2001", []string{"2001", "2001", "3001"}},
		{"empty", "", []string{"3001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			addWorker(store, "3001", "jane@example.com", "Jane Doe")
			addJob(store, "42", "5 movers", tt.roster)
			s := newTestService(t, store, &fakeGeocoder{}, nil)

			_, err := s.AssignWorkerToJob(context.Background(), "42", "jane@example.com")
			require.NoError(t, err)
			require.Len(t, store.patches, 1)
			assert.Equal(t, tt.want, store.patches[0].Fields[records.FieldJobRoster])
		})
	}
}

func TestAssign_NotFound(t *testing.T) {
	store := newFakeStore()
	addWorker(store, "3001", "jane@example.com", "Jane Doe")
	s := newTestService(t, store, &fakeGeocoder{}, nil)
	ctx := context.Background()

	_, err := s.AssignWorkerToJob(ctx, "42", "nobody@example.com")
	assert.True(t, errors.Is(err, ErrWorkerNotFound))

	_, err = s.AssignWorkerToJob(ctx, "42", "jane@example.com")
	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.Contains(t, err.Error(), "42")
	assert.Empty(t, store.patches)
}

func TestAssign_InvalidJobID(t *testing.T) {
	s := newTestService(t, newFakeStore(), &fakeGeocoder{}, nil)

	for _, id := range []string{"", "  ", "42 OR 1", "abc"} {
		_, err := s.AssignWorkerToJob(context.Background(), id, "jane@example.com")
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "id %q", id)
	}
}

func TestAssign_WriteRejectedIsSurfaced(t *testing.T) {
	store := newFakeStore()
	addWorker(store, "3001", "jane@example.com", "Jane Doe")
	addJob(store, "42", "3", nil)
	store.patchErr = &records.WriteRejectedError{
		Operation:  "patch",
		Target:     testResources.JobsReport + "/42",
		StatusCode: 200,
		Code:       3001,
		Details:    json.RawMessage(`{"code":3001,"error":["Movers2 invalid"]}`),
	}
	s := newTestService(t, store, &fakeGeocoder{}, nil)

	_, err := s.AssignWorkerToJob(context.Background(), "42", "jane@example.com")
	require.Error(t, err)

	var rejected *records.WriteRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.JSONEq(t, `{"code":3001,"error":["Movers2 invalid"]}`, string(rejected.Details))
	assert.Len(t, store.patches, 1, "writes are not retried")
}

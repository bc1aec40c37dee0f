package records

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/errors"
)

// Provider field names.
const (
	FieldID = "ID"

	// Movers report
	FieldWorkerEmail = "Email"
	FieldWorkerName  = "Name"

	// Jobs report
	FieldJobCapacity = "Mover_Count"
	FieldJobRoster   = "Movers2"
	FieldJobOrigin   = "Origination_Address"

	// Check-in form
	FieldCheckInJob       = "JobId"
	FieldCheckInWorker    = "Add_Mover"
	FieldCheckInTime      = "Actual_Clock_in_Time1"
	FieldCheckInWorkerPos = "Mover_Coordinates"
	FieldCheckInJobPos    = "Job_Coordinates"
	FieldCheckInDistance  = "Distance"
	FieldCheckInIP        = "CapturedIPAddress"
	FieldCheckInPIN       = "PIN"

	// Payouts report
	FieldPayoutWorker = "MoverID"
	FieldPayoutDate   = "Job_Date"
)

// Worker is a mover, looked up by email and never mutated here.
type Worker struct {
	ID          string
	Email       string
	DisplayName string
}

// Job is the bookable unit of work with a capacity and a roster.
type Job struct {
	ID                  string
	RequiredWorkerCount int
	AssignedWorkerIDs   []string
	OriginAddress       string
}

// CheckIn is an append-only clock-in event.
type CheckIn struct {
	JobID          string
	WorkerID       string
	ClockInTime    time.Time
	WorkerPosition geotime.Point
	JobPosition    geotime.Point
	DistanceMiles  float64
	SourceIP       string
	PIN            string
}

// Fields renders the check-in in the form's field names, with the timestamp
// in loc and the distance to four decimals.
func (c CheckIn) Fields(loc *time.Location) map[string]any {
	return map[string]any{
		FieldCheckInJob:       c.JobID,
		FieldCheckInWorker:    c.WorkerID,
		FieldCheckInTime:      geotime.RecordTimestamp(c.ClockInTime, loc),
		FieldCheckInWorkerPos: c.WorkerPosition.String(),
		FieldCheckInJobPos:    c.JobPosition.String(),
		FieldCheckInDistance:  strconv.FormatFloat(c.DistanceMiles, 'f', 4, 64),
		FieldCheckInIP:        c.SourceIP,
		FieldCheckInPIN:       c.PIN,
	}
}

// ParseWorker extracts a Worker from a movers record.
func ParseWorker(r Record) (Worker, error) {
	id := IDString(r[FieldID])
	if id == "" {
		return Worker{}, errors.New("worker record has no ID")
	}
	return Worker{
		ID:          id,
		Email:       DisplayText(r[FieldWorkerEmail]),
		DisplayName: PersonName(r[FieldWorkerName]),
	}, nil
}

// ParseJob extracts a Job from a jobs record.
func ParseJob(r Record) (Job, error) {
	id := IDString(r[FieldID])
	if id == "" {
		return Job{}, errors.New("job record has no ID")
	}
	return Job{
		ID:                  id,
		RequiredWorkerCount: LeadingInt(r[FieldJobCapacity]),
		AssignedWorkerIDs:   IDList(r[FieldJobRoster]),
		OriginAddress:       DisplayText(r[FieldJobOrigin]),
	}, nil
}

// CheckInWorker returns the worker id and display name a check-in record
// points at. Either may be empty depending on the report's projection.
func CheckInWorker(r Record) (id, name string) {
	switch v := r[FieldCheckInWorker].(type) {
	case map[string]any:
		return IDString(v[FieldID]), DisplayText(v["display_value"])
	default:
		s := IDString(v)
		if isDigits(s) {
			return s, ""
		}
		return "", DisplayText(v)
	}
}

// IDList normalizes a lookup field into ordered ids, blanks dropped.
// Duplicates are kept so the list length matches the stored roster. Accepted
// shapes: an array of objects with ID, an array of bare ids, or a
// comma-delimited string.
func IDList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
	case []any:
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				raw = append(raw, IDString(obj[FieldID]))
				continue
			}
			raw = append(raw, IDString(item))
		}
	case []string:
		raw = t
	case string:
		raw = strings.Split(t, ",")
	default:
		raw = []string{IDString(t)}
	}

	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDString renders an id-like value as a string without float formatting.
func IDString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// DisplayText reads a field that is either a plain string or an object with
// display_value, returning the trimmed text.
func DisplayText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return DisplayText(t["display_value"])
	case json.Number:
		return t.String()
	default:
		return IDString(t)
	}
}

// PersonName reads a name field: a string, {display_value}, or
// {first_name, last_name}.
func PersonName(v any) string {
	if name := DisplayText(v); name != "" {
		return name
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	parts := []string{DisplayText(obj["first_name"]), DisplayText(obj["last_name"])}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// LeadingInt parses the integer prefix of v ("3", "3 movers", 3.0), returning
// 0 when there is none. Negative counts clamp to 0.
func LeadingInt(v any) int {
	var s string
	switch t := v.(type) {
	case nil:
		return 0
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	default:
		s = DisplayText(t)
	}

	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

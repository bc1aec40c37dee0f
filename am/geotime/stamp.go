package geotime

import "time"

// RecordTimestampLayout is the record store's clock-in time format: MM-DD-YY hh:mm AM/PM
const RecordTimestampLayout = "01-02-06 03:04 PM"

// RecordTimestamp formats t in loc using RecordTimestampLayout.
// A nil loc falls back to DefaultBusinessTimezone.
func RecordTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		var err error
		loc, err = LoadBusinessLocation(DefaultBusinessTimezone)
		if err != nil {
			loc = time.UTC
		}
	}
	return t.In(loc).Format(RecordTimestampLayout)
}

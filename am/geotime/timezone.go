package geotime

import (
	"strings"
	"time"
	// Embedded zone database so scratch/distroless images resolve America/Chicago
	_ "time/tzdata"

	"github.com/teranos/moverdesk/errors"
)

// DefaultBusinessTimezone is the civil timezone the record store expects timestamps in.
const DefaultBusinessTimezone = "America/Chicago"

// US-centric abbreviations. Both the standard and daylight forms map to the
// zone so a config written in winter keeps working in summer.
var timezoneByAbbreviation = map[string]string{
	"ct":   "America/Chicago",
	"cst":  "America/Chicago",
	"cdt":  "America/Chicago",
	"et":   "America/New_York",
	"est":  "America/New_York",
	"edt":  "America/New_York",
	"mt":   "America/Denver",
	"mst":  "America/Denver",
	"mdt":  "America/Denver",
	"pt":   "America/Los_Angeles",
	"pst":  "America/Los_Angeles",
	"pdt":  "America/Los_Angeles",
	"akst": "America/Anchorage",
	"akdt": "America/Anchorage",
	"hst":  "Pacific/Honolulu",
	"utc":  "UTC",
	"gmt":  "UTC",

	"central":  "America/Chicago",
	"eastern":  "America/New_York",
	"mountain": "America/Denver",
	"pacific":  "America/Los_Angeles",
}

// NormalizeTimezone attempts to resolve user input into a valid IANA timezone.
func NormalizeTimezone(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("timezone cannot be empty")
	}

	if tz, ok := timezoneByAbbreviation[strings.ToLower(trimmed)]; ok {
		return tz, nil
	}

	if isValidTimezone(trimmed) && !hasIncorrectCapitalization(trimmed) {
		return trimmed, nil
	}

	// Try sanitizing only if the raw input isn't already canonical
	candidate := sanitizeTimezone(trimmed)
	if isValidTimezone(candidate) {
		return candidate, nil
	}
	if isValidTimezone(trimmed) {
		return trimmed, nil
	}

	return "", errors.Newf("unknown timezone: %s", input)
}

// LoadBusinessLocation resolves a configured timezone name (IANA or a common
// US abbreviation) to a *time.Location. Empty input yields DefaultBusinessTimezone.
func LoadBusinessLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultBusinessTimezone
	}
	tz, err := NormalizeTimezone(name)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load timezone %s", tz)
	}
	return loc, nil
}

func sanitizeTimezone(tz string) string {
	trimmed := strings.TrimSpace(tz)
	trimmed = strings.Trim(trimmed, "\"'")
	trimmed = strings.ReplaceAll(trimmed, " ", "_")
	if strings.Contains(trimmed, "/") {
		parts := strings.Split(trimmed, "/")
		for i, part := range parts {
			parts[i] = titleSegment(part)
		}
		return strings.Join(parts, "/")
	}
	return titleSegment(trimmed)
}

// titleSegment capitalizes each underscore-separated word: new_york -> New_York
func titleSegment(s string) string {
	words := strings.Split(strings.ToLower(s), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, "_")
}

func isValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// hasIncorrectCapitalization detects names like "america/chicago" that
// LoadLocation may accept on case-insensitive filesystems but are not canonical.
func hasIncorrectCapitalization(tz string) bool {
	if strings.ToLower(tz) == tz {
		return true
	}
	for _, part := range strings.Split(tz, "/") {
		if len(part) > 0 && part[0] >= 'a' && part[0] <= 'z' {
			return true
		}
	}
	return false
}

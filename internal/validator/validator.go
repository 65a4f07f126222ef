// Package validator normalizes free-text timestamps and locations typed by users.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the only accepted observation time format (DD-MM-YYYY HH:MM, 24h).
const TimestampLayout = "02-01-2006 15:04"

var ErrInvalidTimestamp = errors.New("timestamp must match DD-MM-YYYY HH:MM")

var coordinatePattern = regexp.MustCompile(`([-+]?\d+(?:\.\d+)?)(?:\s*,\s*|\s+)([-+]?\d+(?:\.\d+)?)`)

// ParseObservationTimestamp parses text as wall time in loc. A nil loc means time.Local.
func ParseObservationTimestamp(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value := strings.TrimSpace(text)
	ts, err := time.ParseInLocation(TimestampLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	return ts, nil
}

// ExtractCoordinates finds the first "lat,lon" or "lat lon" pair in text.
// Values are not range checked; see InRange.
func ExtractCoordinates(text string) (lat, lon float64, ok bool) {
	m := coordinatePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// InRange reports whether lat/lon are valid decimal degrees.
func InRange(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

package dateparse

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTarget = errors.New("invalid countdown target")

// Layouts accepted by ParseTarget, tried in order. A trailing Z is UTC, a
// numeric zone is honored, anything else is local time.
var Layouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006T15:04:05.000Z07:00",
	"01/02/2006T15:04:05.000-0700",
	"01/02/2006T15:04:05.000",
	"01/02/2006T15:04:05-0700",
	"01/02/2006T15:04:05",
	"2006:01:02 15:04:05",
	"20060102",
	"02.01.2006",
	"01/02/2006",
}

// DisplayLayout formats instants in log output and the UI.
const DisplayLayout = "02.01.2006 - 15:04:05.00 MST"

// ParseTarget parses value with the first matching layout in loc. A nil
// loc means time.Local.
func ParseTarget(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidTarget)
	}
	if loc == nil {
		loc = time.Local
	}

	for _, layout := range Layouts {
		if target, err := time.ParseInLocation(layout, value, loc); err == nil {
			return target, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrInvalidTarget, value)
}

// ParseDuration accepts a number of milliseconds, with any fraction
// truncated, or a Go duration such as "1m30s".
func ParseDuration(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrInvalidTarget)
	}

	if millis, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(millis) || math.IsInf(millis, 0) || math.Abs(millis) >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: duration %q out of range", ErrInvalidTarget, value)
		}
		return int64(millis), nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: unrecognized duration %q", ErrInvalidTarget, value)
	}
	return duration.Milliseconds(), nil
}

package utils

import (
	"fmt"
	"strconv"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 instants and bare dates. Values without a
// zone are read as UTC.
func ParseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

// ParseTimeParam parses an optional query bound; "" means unbounded.
func ParseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	ts, err := ParseTimestamp(v)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// IntQueryOr parses a positive integer query value, returning def when the
// value is missing, malformed or not positive.
func IntQueryOr(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

package ais

import (
	"errors"
	"strings"
	"time"
)

// aisstream formats time_utc like Go's time.Time.String(), e.g.
// "2024-01-15 10:30:00.123456789 +0000 UTC". Z0700 also accepts a literal "Z".
// Fractional seconds are accepted by Parse without being in the layout.
var timestampLayouts = []string{
	"2006-01-02 15:04:05 Z0700",
	"2006-01-02 15:04:05 Z07:00",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

var errEmptyTimestamp = errors.New("ais: empty timestamp")

// ParseTimestamp parses an aisstream time_utc value into UTC. When both an
// offset and a zone name are present the offset is authoritative.
func ParseTimestamp(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return time.Time{}, errEmptyTimestamp
	}
	// time.Parse binds "UTC" to time.UTC and would discard the offset before it.
	if len(fields) == 4 {
		fields = fields[:3]
	}
	s = strings.Join(fields, " ")

	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

package guardian

import (
	"fmt"
	"strings"
	"time"
)

const (
	apiDateLayout     = "2006-01-02T15:04:05Z"
	displayDateLayout = "Jan 2, 2006"
)

// ParsePublicationDate parses webPublicationDate. Fractional seconds and numeric
// offsets are accepted as a fallback.
func ParsePublicationDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(apiDateLayout, raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse publication date %q: %w", raw, err)
	}
	return ts, nil
}

// FormatPublicationDate renders raw as "May 1, 2023".
func FormatPublicationDate(raw string) (string, error) {
	ts, err := ParsePublicationDate(raw)
	if err != nil {
		return "", err
	}
	return ts.Format(displayDateLayout), nil
}

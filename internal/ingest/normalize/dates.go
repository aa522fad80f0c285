package normalize

import (
	"strings"
	"time"
)

// Layouts seen across the registered portals. Day-first before month-first:
// most registered sources are European.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01",
	"2006",
}

// ParseDate parses a raw date value into UTC, reporting failure instead of
// erroring: unparseable dates demote to nil with a warning upstream.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

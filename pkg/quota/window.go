package quota

import (
	"strings"
	"time"
)

// DefaultTimeZone is used when no zone is configured.
const DefaultTimeZone = "UTC"

const windowIDLayout = "2006-01-02"

// ResolveWindow returns the current daily accounting window for the given
// IANA time zone. A blank zone falls back to DefaultTimeZone, and a zone
// that fails to load falls back to UTC: resolving a window is never a hard
// failure path, since every quota decision depends on it.
//
// Within a single zone the result is stable across a local calendar day;
// two calls on the same local day always produce the same window ID.
func ResolveWindow(timeZone string) Window {
	return ResolveWindowAt(time.Now(), timeZone)
}

// ResolveWindowAt computes the daily window containing t in the given zone.
func ResolveWindowAt(t time.Time, timeZone string) Window {
	zone := strings.TrimSpace(timeZone)
	if zone == "" {
		zone = DefaultTimeZone
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		// Unknown zone: degrade to UTC rather than failing.
		zone = "UTC"
		loc = time.UTC
	}

	return Window{
		Kind:     WindowKindDaily,
		ID:       t.In(loc).Format(windowIDLayout),
		TimeZone: zone,
	}
}

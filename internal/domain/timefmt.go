package domain

import (
	"fmt"
	"time"
)

const (
	displayLayout = "Jan 2, 2006, 03:04 PM"
	pickerLayout  = "2006-01-02T15:04"
	// Placeholder - rendering of a timestamp that is not known yet.
	Placeholder = "—"
)

// FormatTime renders an epoch-seconds timestamp for display in loc.
func FormatTime(ts uint64, loc *time.Location) string {
	if ts == 0 {
		return Placeholder
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(int64(ts), 0).In(loc).Format(displayLayout)
}

// TimeRemaining returns the time left until end. The second result is false once end has passed.
func TimeRemaining(now time.Time, end uint64) (time.Duration, bool) {
	diff := int64(end) - now.Unix()
	if diff <= 0 {
		return 0, false
	}
	return time.Duration(diff) * time.Second, true
}

// FormatRemaining renders a remaining duration as "2d 3h left", "3h 5m left" or "5m left".
func FormatRemaining(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	hours := (secs % 86400) / 3600
	mins := (secs % 3600) / 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh left", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm left", hours, mins)
	default:
		return fmt.Sprintf("%dm left", mins)
	}
}

// ParsePickerTime parses a date-time picker value ("2006-01-02T15:04", optionally with seconds)
// in loc, or an RFC3339 timestamp. An empty value yields the zero time.
func ParsePickerTime(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{pickerLayout, pickerLayout + ":05"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", value)
}

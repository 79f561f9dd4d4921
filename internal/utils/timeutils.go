package utils

import (
	"fmt"
	"time"
)

// ClockLayout is the 24-hour hour:minute layout used in call captions.
const ClockLayout = "15:04"

// FormatClock renders a unix timestamp as HH:MM in loc (local time when nil).
func FormatClock(unix int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(unix, 0).In(loc).Format(ClockLayout)
}

// CallCaption prefixes the server name with the reporting time.
func CallCaption(unix int64, server string, loc *time.Location) string {
	return fmt.Sprintf("%s - %s", FormatClock(unix, loc), server)
}

// CallTitle is the heading shown for a single call.
func CallTitle(unix int64, loc *time.Location) string {
	return "Call at " + FormatClock(unix, loc)
}

// WholeSeconds truncates a duration to whole seconds, never negative.
func WholeSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

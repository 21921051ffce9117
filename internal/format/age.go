package format

import (
	"fmt"
	"time"
)

// FormatAge formats a duration as a compact age: "now", "5m", "2h", "3d",
// "2w", "3mo", "2y".
func FormatAge(d time.Duration) string {
	if d < time.Minute {
		return "now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	switch {
	case days < 7:
		return fmt.Sprintf("%dd", days)
	case days < 30:
		return fmt.Sprintf("%dw", days/7)
	case days < 365:
		return fmt.Sprintf("%dmo", days/30)
	default:
		return fmt.Sprintf("%dy", days/365)
	}
}

// Since formats the age of t relative to now. A zero time, such as a version
// without a recorded publish time, renders as "-".
func Since(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return FormatAge(now.Sub(t))
}

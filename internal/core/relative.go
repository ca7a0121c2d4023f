package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RelativeTime renders the time elapsed since t as a short human string:
// "3 days ago", "1 hour ago", "12 minutes ago" or "just now". Sensor
// attributes carry the account's last-update time in this form.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	delta := now.Sub(t)
	if delta < 0 {
		delta = 0
	}
	days := int64(delta.Hours() / 24)
	hours := int64(delta.Hours())
	minutes := int64(delta.Minutes())

	switch {
	case days > 0:
		return fmt.Sprintf("%d day%s ago", days, plural(days))
	case hours > 0:
		return fmt.Sprintf("%d hour%s ago", hours, plural(hours))
	case minutes > 0:
		return fmt.Sprintf("%d minute%s ago", minutes, plural(minutes))
	default:
		return "just now"
	}
}

func plural(n int64) string {
	if n > 1 {
		return "s"
	}
	return ""
}

var (
	caseRunBoundary  = regexp.MustCompile(`([A-Z]+)`)
	caseWordBoundary = regexp.MustCompile(`([A-Z][a-z]+)`)
)

// SnakeCase converts a label like "Monarch Net Worth" or "CreditCards" to
// snake_case, the form used for sensor ids.
func SnakeCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = caseRunBoundary.ReplaceAllString(s, " $1")
	s = caseWordBoundary.ReplaceAllString(s, " $1")
	return strings.ToLower(strings.Join(strings.Fields(s), "_"))
}

package util

import (
	"strings"
	"time"
)

// KST is the Korea Standard Time zone (UTC+9, no DST) used by snapshot dates.
var KST = time.FixedZone("KST", 9*60*60)

// DateLayout is the layout of snapshot and history dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date in KST. Longer strings such as
// "2025-01-02 15:30" or RFC3339 timestamps are truncated to their date part.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(DateLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, s[:len(DateLayout)], KST)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// TodayKST returns now's calendar date in KST formatted as YYYY-MM-DD.
func TodayKST(now time.Time) string {
	return now.In(KST).Format(DateLayout)
}

// IsToday reports whether date falls on now's KST calendar day.
func IsToday(date string, now time.Time) bool {
	t, ok := ParseDate(date)
	if !ok {
		return false
	}
	return t.Format(DateLayout) == TodayKST(now)
}

// utils/timeutil.go
package utils

import "time"

// Vietnam time location (ICT, +07:00)
var vnLoc = func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Ho_Chi_Minh"); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*3600)
}()

// Clock is the time source for everything that stamps payment records.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now() }

// Convert an epoch value in **seconds** to VN time.
// Returns zero time if t<=0 to let callers decide how to render.
func FromUnixSecondsVN(t int64) time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.Unix(t, 0).In(vnLoc)
}

func FormatRFC3339VN(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(vnLoc).Format(time.RFC3339) // e.g. 2025-09-24T15:12:00+07:00
}

// FormatUnixPtrVN renders an optional unix-seconds timestamp, or "" when unset.
func FormatUnixPtrVN(t *int64) string {
	if t == nil {
		return ""
	}
	return FormatRFC3339VN(FromUnixSecondsVN(*t))
}

// ParseGatewayTime reads payOS timestamps ("2006-01-02 15:04:05", local VN time).
func ParseGatewayTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, vnLoc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

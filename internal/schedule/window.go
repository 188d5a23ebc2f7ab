package schedule

import "time"

// WithinWindow reports whether now falls inside the session's marking
// window: [start, end] on the session's date, inclusive at both ends so
// marking stays legal through the literal end minute. Degenerate windows
// (end not after start) are never within, which keeps reconciliation
// total over malformed schedule rows.
func WithinWindow(date time.Time, start, end ClockTime, now time.Time) bool {
	if !start.Before(end) {
		return false
	}
	open := start.On(date)
	shut := end.On(date)
	return !now.Before(open) && !now.After(shut)
}

// Window is a convenience for a session instance's own bounds.
func (s SessionInstance) Within(now time.Time) bool {
	return WithinWindow(s.Date, s.Start, s.End, now)
}

package schedule

import (
	"fmt"
	"sort"
	"time"
)

// ClockTime is a wall-clock time with minute precision, as stored on a
// weekly slot ("HH:MM", 24-hour).
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses a "HH:MM" string.
func ParseClock(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return ClockTime{}, fmt.Errorf("bad clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("bad clock time %q: out of range", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the offset from midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

// Before reports whether c is earlier in the day than other.
func (c ClockTime) Before(other ClockTime) bool { return c.Minutes() < other.Minutes() }

// On anchors the clock time to a calendar date, in the date's location.
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

// MarshalJSON renders the "HH:MM" wire form.
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON accepts the "HH:MM" wire form.
func (c *ClockTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseWeekday maps an English weekday name ("Monday") to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return d, true
		}
	}
	return 0, false
}

// WeeklySlot is one recurring meeting of a course.
type WeeklySlot struct {
	Day   time.Weekday `json:"day"`
	Start ClockTime    `json:"start_time"`
	End   ClockTime    `json:"end_time"`
}

// Valid reports whether the slot can ever yield a markable session.
// A slot whose end does not come after its start is schedule noise and
// is skipped by Expand rather than failing the whole course.
func (s WeeklySlot) Valid() bool {
	return s.Start.Before(s.End)
}

// SessionInstance is a single concrete occurrence of a weekly slot.
// Date is midnight in the location the semester start was given in.
type SessionInstance struct {
	Date  time.Time    `json:"date"`
	Day   time.Weekday `json:"day"`
	Start ClockTime    `json:"start_time"`
	End   ClockTime    `json:"end_time"`
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Expand generates every session occurrence between the semester start and
// start + durationMonths (calendar month addition, both bounds inclusive).
// Each day in the range emits one instance per slot matching its weekday.
// The result is ordered by (date, start time). Invalid slots are skipped.
func Expand(semesterStart time.Time, durationMonths int, slots []WeeklySlot) []SessionInstance {
	if durationMonths < 0 || len(slots) == 0 {
		return nil
	}

	// Group usable slots by weekday, each day's slots ordered by start
	// time so the overall (date, start) ordering falls out of the scan.
	byDay := make(map[time.Weekday][]WeeklySlot)
	for _, s := range slots {
		if !s.Valid() {
			continue
		}
		byDay[s.Day] = append(byDay[s.Day], s)
	}
	for d := range byDay {
		sort.Slice(byDay[d], func(i, j int) bool {
			return byDay[d][i].Start.Before(byDay[d][j].Start)
		})
	}

	start := DateOnly(semesterStart)
	end := start.AddDate(0, durationMonths, 0)

	var out []SessionInstance
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, s := range byDay[day.Weekday()] {
			out = append(out, SessionInstance{
				Date:  day,
				Day:   day.Weekday(),
				Start: s.Start,
				End:   s.End,
			})
		}
	}
	return out
}

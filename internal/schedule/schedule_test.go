package schedule

import (
	"reflect"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clock(h, m int) ClockTime { return ClockTime{Hour: h, Minute: m} }

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{"09:00", clock(9, 0), false},
		{"23:59", clock(23, 59), false},
		{"0:05", clock(0, 5), false},
		{"24:00", ClockTime{}, true},
		{"10:60", ClockTime{}, true},
		{"-1:30", ClockTime{}, true},
		{"abc", ClockTime{}, true},
		{"", ClockTime{}, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	if d, ok := ParseWeekday("Monday"); !ok || d != time.Monday {
		t.Errorf("ParseWeekday(Monday) = %v, %v", d, ok)
	}
	if _, ok := ParseWeekday("monday"); ok {
		t.Error("ParseWeekday should be exact-case like the upstream feed")
	}
	if _, ok := ParseWeekday("Funday"); ok {
		t.Error("ParseWeekday accepted garbage")
	}
}

func TestExpandMondaySemester(t *testing.T) {
	slots := []WeeklySlot{{Day: time.Monday, Start: clock(9, 0), End: clock(10, 0)}}
	got := Expand(date(2024, time.September, 2), 1, slots)

	wantDates := []time.Time{
		date(2024, time.September, 2),
		date(2024, time.September, 9),
		date(2024, time.September, 16),
		date(2024, time.September, 23),
		date(2024, time.September, 30),
	}
	if len(got) != len(wantDates) {
		t.Fatalf("expected %d sessions, got %d", len(wantDates), len(got))
	}
	for i, inst := range got {
		if !inst.Date.Equal(wantDates[i]) {
			t.Errorf("session %d: date %v, want %v", i, inst.Date, wantDates[i])
		}
		if inst.Day != time.Monday {
			t.Errorf("session %d: day %v, want Monday", i, inst.Day)
		}
		if inst.Start != clock(9, 0) || inst.End != clock(10, 0) {
			t.Errorf("session %d: window %v-%v", i, inst.Start, inst.End)
		}
	}
}

func TestExpandOrdering(t *testing.T) {
	slots := []WeeklySlot{
		{Day: time.Monday, Start: clock(13, 0), End: clock(14, 0)},
		{Day: time.Wednesday, Start: clock(9, 0), End: clock(10, 0)},
		{Day: time.Monday, Start: clock(9, 0), End: clock(10, 0)},
	}
	got := Expand(date(2024, time.September, 2), 1, slots)

	var prevDate time.Time
	prevStart := -1
	for i, inst := range got {
		if inst.Date.Equal(prevDate) {
			if inst.Start.Minutes() < prevStart {
				t.Fatalf("session %d out of order: %v %v after %v", i, inst.Date, inst.Start, prevStart)
			}
		} else if inst.Date.Before(prevDate) {
			t.Fatalf("session %d date out of order: %v before %v", i, inst.Date, prevDate)
		}
		prevDate, prevStart = inst.Date, inst.Start.Minutes()
	}

	// Two Monday slots: the 09:00 one must precede 13:00 on every Monday.
	if got[0].Start != clock(9, 0) || got[1].Start != clock(13, 0) {
		t.Errorf("first Monday not ordered by start: %v then %v", got[0].Start, got[1].Start)
	}
}

func TestExpandZeroMonths(t *testing.T) {
	monday := []WeeklySlot{{Day: time.Monday, Start: clock(9, 0), End: clock(10, 0)}}
	got := Expand(date(2024, time.September, 2), 0, monday)
	if len(got) != 1 || !got[0].Date.Equal(date(2024, time.September, 2)) {
		t.Fatalf("zero-month semester starting on its slot day should yield that day only, got %v", got)
	}

	friday := []WeeklySlot{{Day: time.Friday, Start: clock(9, 0), End: clock(10, 0)}}
	if got := Expand(date(2024, time.September, 2), 0, friday); len(got) != 0 {
		t.Fatalf("zero-month semester off the slot day should be empty, got %v", got)
	}
}

func TestExpandDegenerateInputs(t *testing.T) {
	if got := Expand(date(2024, time.September, 2), 1, nil); got != nil {
		t.Errorf("no slots should yield nil, got %v", got)
	}
	if got := Expand(date(2024, time.September, 2), -1, []WeeklySlot{{Day: time.Monday, Start: clock(9, 0), End: clock(10, 0)}}); got != nil {
		t.Errorf("negative duration should yield nil, got %v", got)
	}

	// An inverted window is schedule noise, not an error.
	bad := []WeeklySlot{{Day: time.Monday, Start: clock(10, 0), End: clock(9, 0)}}
	if got := Expand(date(2024, time.September, 2), 1, bad); len(got) != 0 {
		t.Errorf("invalid slot should be skipped, got %v", got)
	}
}

func TestExpandSlotNeverOccurring(t *testing.T) {
	// Saturday never falls inside a window shorter than a week.
	slots := []WeeklySlot{{Day: time.Saturday, Start: clock(9, 0), End: clock(10, 0)}}
	start := date(2024, time.September, 2) // Monday
	got := Expand(start, 0, slots)
	if len(got) != 0 {
		t.Fatalf("expected no sessions, got %d", len(got))
	}
}

func TestExpandBoundsAndWeekdays(t *testing.T) {
	start := date(2024, time.September, 17)
	months := 4
	slots := []WeeklySlot{
		{Day: time.Tuesday, Start: clock(8, 30), End: clock(10, 0)},
		{Day: time.Thursday, Start: clock(14, 0), End: clock(15, 30)},
	}
	end := start.AddDate(0, months, 0)

	for _, inst := range Expand(start, months, slots) {
		if inst.Date.Weekday() != inst.Day {
			t.Fatalf("weekday mismatch on %v: %v vs %v", inst.Date, inst.Date.Weekday(), inst.Day)
		}
		if inst.Day != time.Tuesday && inst.Day != time.Thursday {
			t.Fatalf("unexpected weekday %v", inst.Day)
		}
		if inst.Date.Before(start) || inst.Date.After(end) {
			t.Fatalf("date %v outside [%v, %v]", inst.Date, start, end)
		}
	}
}

func TestExpandIdempotent(t *testing.T) {
	start := date(2024, time.September, 2)
	slots := []WeeklySlot{
		{Day: time.Monday, Start: clock(9, 0), End: clock(10, 0)},
		{Day: time.Wednesday, Start: clock(11, 0), End: clock(12, 0)},
	}
	a := Expand(start, 3, slots)
	b := Expand(start, 3, slots)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Expand is not deterministic for identical inputs")
	}
}

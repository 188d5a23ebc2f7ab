package reconcile

import (
	"strings"
	"time"

	"classtrack/internal/schedule"
)

// Status classifies a session after reconciliation.
type Status string

const (
	StatusPresent  Status = "Present"
	StatusAbsent   Status = "Absent"
	StatusUpcoming Status = "Upcoming"
)

// Record is one attendance fact as recorded upstream. Sparse: a date
// with no record means "nothing observed yet", not absent.
type Record struct {
	Date   time.Time
	Status string // "present"/"absent" as the source spells it, case varies
}

// ReconciledSession is a session instance annotated with its attendance
// status and whether now falls inside its marking window.
type ReconciledSession struct {
	schedule.SessionInstance
	Status       Status `json:"status"`
	WithinWindow bool   `json:"within_window"`
}

// Warning flags duplicate records for one date; the first record won.
type Warning struct {
	Date  time.Time
	Count int
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Merge reconciles expanded sessions against recorded attendance.
//
// Per session, in priority order: a matching record's status (matched by
// calendar date, time of day ignored; first record in input order wins
// when upstream holds duplicates), Upcoming when the session date is
// after now's date, Absent otherwise. WithinWindow is computed
// independently of status. Inputs are not mutated and ordering follows
// the sessions slice.
func Merge(sessions []schedule.SessionInstance, records []Record, now time.Time) ([]ReconciledSession, []Warning) {
	first := make(map[string]Record, len(records))
	counts := make(map[string]int, len(records))
	for _, r := range records {
		k := dateKey(r.Date)
		if _, seen := first[k]; !seen {
			first[k] = r
		}
		counts[k]++
	}

	var warnings []Warning
	seenDup := make(map[string]bool)

	today := schedule.DateOnly(now)
	out := make([]ReconciledSession, 0, len(sessions))
	for _, s := range sessions {
		k := dateKey(s.Date)

		status := StatusAbsent
		if rec, ok := first[k]; ok {
			if strings.EqualFold(rec.Status, "present") {
				status = StatusPresent
			} else {
				status = StatusAbsent
			}
			if counts[k] > 1 && !seenDup[k] {
				seenDup[k] = true
				warnings = append(warnings, Warning{Date: s.Date, Count: counts[k]})
			}
		} else if s.Date.After(today) {
			status = StatusUpcoming
		}

		out = append(out, ReconciledSession{
			SessionInstance: s,
			Status:          status,
			WithinWindow:    s.Within(now),
		})
	}
	return out, warnings
}

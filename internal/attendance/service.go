package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"classtrack/internal/course"
	"classtrack/internal/marking"
	"classtrack/internal/queue"
	"classtrack/internal/reconcile"
	"classtrack/internal/schedule"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrNotEnrolled    = errors.New("student not enrolled in course")
	ErrAlreadyMarked  = errors.New("attendance already marked for this session")
)

// Guard fences duplicate redemptions; satisfied by store.Redis.
type Guard interface {
	AcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Service reconciles timelines and applies redemptions.
type Service struct {
	courses *course.Repository
	repo    *Repository
	guard   Guard
	q       queue.Queue
}

// NewService wires the service's collaborators.
func NewService(courses *course.Repository, repo *Repository, guard Guard, q queue.Queue) *Service {
	return &Service{courses: courses, repo: repo, guard: guard, q: q}
}

// Timeline expands the course schedule and reconciles it against the
// student's records as of now. Duplicate-record warnings from the merge
// are logged here; the first record won, per policy.
func (s *Service) Timeline(ctx context.Context, courseID, studentID string, now time.Time) ([]reconcile.ReconciledSession, error) {
	c, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCourseNotFound
	}
	if ok, err := s.courses.IsEnrolled(ctx, courseID, studentID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotEnrolled
	}

	sessions := schedule.Expand(c.SemesterStart, c.Months, c.Slots)
	records, err := s.repo.ListRecords(ctx, courseID, studentID)
	if err != nil {
		return nil, err
	}

	merged, warnings := reconcile.Merge(sessions, records, now)
	for _, w := range warnings {
		log.Printf("data quality: %d attendance records for course %s student %s on %s, first kept",
			w.Count, courseID, studentID, w.Date.Format("2006-01-02"))
	}
	return merged, nil
}

// Redeem is the authoritative marking write behind the coordinator's
// Submitting state. It re-validates the window against the server clock,
// fences duplicates in Redis, writes the record and publishes the marked
// event for the audit worker.
func (s *Service) Redeem(ctx context.Context, userID string, sess marking.Session, now time.Time) (Event, error) {
	if !schedule.WithinWindow(sess.Date, sess.Start, sess.End, now) {
		return Event{}, marking.ErrOutOfWindow
	}
	if ok, err := s.courses.IsEnrolled(ctx, sess.CourseID, userID); err != nil {
		return Event{}, err
	} else if !ok {
		return Event{}, ErrNotEnrolled
	}

	key := fmt.Sprintf("marked:%s:%s:%s", userID, sess.CourseID, sess.Date.Format("2006-01-02"))
	ttl := time.Until(sess.End.On(sess.Date)) + time.Minute
	acquired, err := s.guard.AcquireOnce(ctx, key, ttl)
	if err != nil {
		return Event{}, err
	}
	if !acquired {
		return Event{}, ErrAlreadyMarked
	}

	inserted, err := s.repo.InsertRecord(ctx, sess.CourseID, userID, sess.Date, "present")
	if err != nil {
		// Let the user retry; the write never happened.
		_ = s.guard.Release(ctx, key)
		return Event{}, err
	}
	if !inserted {
		return Event{}, ErrAlreadyMarked
	}

	evt, err := s.repo.InsertEvent(ctx, Event{
		UserID:   userID,
		CourseID: sess.CourseID,
		Date:     sess.Date,
		Status:   "marked",
	})
	if err != nil {
		// Record is in; the event trail is best effort.
		log.Printf("marking event insert failed for %s: %v", key, err)
		return Event{UserID: userID, CourseID: sess.CourseID, Date: sess.Date, Status: "marked"}, nil
	}

	if err := s.q.Publish(ctx, queue.Message{Type: "marked", Body: []byte(evt.ID)}); err != nil {
		log.Printf("queue publish failed for event %s: %v", evt.ID, err)
	}
	return evt, nil
}

// AuditDate re-reads a student's records for one date after a marking
// event and reports upstream duplicates, per the tolerate-and-flag policy.
func (s *Service) AuditDate(ctx context.Context, eventID string) error {
	evt, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	n, err := s.repo.CountRecordsOn(ctx, evt.CourseID, evt.UserID, evt.Date)
	if err != nil {
		return err
	}
	if n > 1 {
		log.Printf("data quality: %d records for course %s user %s on %s",
			n, evt.CourseID, evt.UserID, evt.Date.Format("2006-01-02"))
	}
	return s.repo.UpdateEventStatus(ctx, evt.ID, "audited")
}

package marking

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"classtrack/internal/schedule"
)

type fakeVerifier struct {
	sess Session
	err  error
}

func (f fakeVerifier) Verify(token string) (Session, error) {
	return f.sess, f.err
}

type countingRedeemer struct {
	calls int32
	err   error
}

func (r *countingRedeemer) Redeem(ctx context.Context, sess Session, token string) error {
	atomic.AddInt32(&r.calls, 1)
	return r.err
}

func monSession() Session {
	return Session{
		CourseID: "c1",
		Date:     time.Date(2024, time.September, 16, 0, 0, 0, 0, time.UTC),
		Start:    schedule.ClockTime{Hour: 9},
		End:      schedule.ClockTime{Hour: 10},
	}
}

func inWindow() time.Time {
	return time.Date(2024, time.September, 16, 9, 30, 0, 0, time.UTC)
}

func TestMarkResolved(t *testing.T) {
	red := &countingRedeemer{}
	c := NewCoordinator(fakeVerifier{sess: monSession()}, red)

	att := c.Mark(context.Background(), "tok", inWindow())
	if att.State != StateResolved {
		t.Fatalf("state %s, reason %v", att.State, att.Reason)
	}
	if red.calls != 1 {
		t.Fatalf("redeemer called %d times, want 1", red.calls)
	}
	if att.Session.CourseID != "c1" {
		t.Errorf("session not carried on attempt: %+v", att.Session)
	}
}

func TestMarkEmptyToken(t *testing.T) {
	red := &countingRedeemer{}
	c := NewCoordinator(fakeVerifier{sess: monSession()}, red)

	att := c.Mark(context.Background(), "", inWindow())
	if att.State != StateRejected || !errors.Is(att.Reason, ErrEmptyToken) {
		t.Fatalf("state %s, reason %v", att.State, att.Reason)
	}
	if red.calls != 0 {
		t.Fatal("no submission may happen for an empty token")
	}
}

func TestMarkBadToken(t *testing.T) {
	red := &countingRedeemer{}
	c := NewCoordinator(fakeVerifier{err: errors.New("boom")}, red)

	att := c.Mark(context.Background(), "tok", inWindow())
	if att.State != StateRejected || !errors.Is(att.Reason, ErrBadToken) {
		t.Fatalf("state %s, reason %v", att.State, att.Reason)
	}
	if red.calls != 0 {
		t.Fatal("no submission may happen for an unverifiable token")
	}
}

func TestMarkOutOfWindow(t *testing.T) {
	red := &countingRedeemer{}
	c := NewCoordinator(fakeVerifier{sess: monSession()}, red)

	late := time.Date(2024, time.September, 16, 10, 1, 0, 0, time.UTC)
	att := c.Mark(context.Background(), "tok", late)
	if att.State != StateRejected || !errors.Is(att.Reason, ErrOutOfWindow) {
		t.Fatalf("state %s, reason %v", att.State, att.Reason)
	}
	if red.calls != 0 {
		t.Fatal("no submission may happen outside the window")
	}
}

func TestMarkSubmissionFailureNoRetry(t *testing.T) {
	red := &countingRedeemer{err: errors.New("endpoint down")}
	c := NewCoordinator(fakeVerifier{sess: monSession()}, red)

	att := c.Mark(context.Background(), "tok", inWindow())
	if att.State != StateRejected || !errors.Is(att.Reason, ErrSubmission) {
		t.Fatalf("state %s, reason %v", att.State, att.Reason)
	}
	if red.calls != 1 {
		t.Fatalf("redeemer called %d times, want exactly 1 (no automatic retry)", red.calls)
	}

	// A fresh user-initiated attempt re-enters the machine.
	red.err = nil
	att = c.Mark(context.Background(), "tok", inWindow())
	if att.State != StateResolved {
		t.Fatalf("retry attempt: state %s, reason %v", att.State, att.Reason)
	}
}

type blockingRedeemer struct {
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRedeemer) Redeem(ctx context.Context, sess Session, token string) error {
	close(r.entered)
	<-r.release
	return nil
}

func TestMarkRejectsWhileInFlight(t *testing.T) {
	red := &blockingRedeemer{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewCoordinator(fakeVerifier{sess: monSession()}, red)

	done := make(chan Attempt, 1)
	go func() {
		done <- c.Mark(context.Background(), "tok-1", inWindow())
	}()

	<-red.entered
	att := c.Mark(context.Background(), "tok-2", inWindow())
	if att.State != StateRejected || !errors.Is(att.Reason, ErrBusy) {
		t.Fatalf("second token while in flight: state %s, reason %v", att.State, att.Reason)
	}

	close(red.release)
	first := <-done
	if first.State != StateResolved {
		t.Fatalf("first attempt: state %s, reason %v", first.State, first.Reason)
	}

	// With the flight resolved the machine accepts tokens again.
	red2 := &countingRedeemer{}
	c2 := NewCoordinator(fakeVerifier{sess: monSession()}, red2)
	if att := c2.Mark(context.Background(), "tok-3", inWindow()); att.State != StateResolved {
		t.Fatalf("fresh coordinator: state %s", att.State)
	}
}

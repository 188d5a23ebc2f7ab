package marking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"classtrack/internal/schedule"
)

// State of a marking attempt.
type State string

const (
	StateIdle          State = "idle"
	StateTokenObtained State = "token_obtained"
	StateValidating    State = "validating"
	StateSubmitting    State = "submitting"
	StateResolved      State = "resolved"
	StateRejected      State = "rejected"
)

// Reject reasons surfaced to the caller.
var (
	ErrEmptyToken  = errors.New("empty session token")
	ErrBadToken    = errors.New("invalid session token")
	ErrOutOfWindow = errors.New("session is not currently markable")
	ErrSubmission  = errors.New("marking submission failed")
	ErrBusy        = errors.New("a marking submission is already in flight")
)

// Session is the occurrence a token is bound to.
type Session struct {
	CourseID string
	Date     time.Time
	Start    schedule.ClockTime
	End      schedule.ClockTime
}

// TokenVerifier resolves a presented token to its bound session.
type TokenVerifier interface {
	Verify(token string) (Session, error)
}

// Redeemer performs the single outbound marking submission.
type Redeemer interface {
	Redeem(ctx context.Context, sess Session, token string) error
}

// RedeemFunc adapts a function to Redeemer.
type RedeemFunc func(ctx context.Context, sess Session, token string) error

func (f RedeemFunc) Redeem(ctx context.Context, sess Session, token string) error {
	return f(ctx, sess, token)
}

// Attempt is the outcome of one token presentation.
type Attempt struct {
	Token   string
	Session Session
	State   State
	Reason  error // nil unless State is StateRejected
}

// Coordinator drives the marking state machine for presented tokens.
// Exactly one submission goes out per accepted token, and no new token
// is accepted while a submission is in flight. Failed submissions are
// never retried here; retry is a fresh user-initiated attempt.
type Coordinator struct {
	verify TokenVerifier
	redeem Redeemer

	mu       sync.Mutex
	inFlight bool
}

// NewCoordinator wires the token verifier and the redemption collaborator.
func NewCoordinator(verify TokenVerifier, redeem Redeemer) *Coordinator {
	return &Coordinator{verify: verify, redeem: redeem}
}

// Mark runs one attempt: TokenObtained -> Validating -> Submitting ->
// Resolved/Rejected. Rejections before Submitting make no outbound call.
// now is caller-supplied so window checks are deterministic.
func (c *Coordinator) Mark(ctx context.Context, token string, now time.Time) Attempt {
	att := Attempt{Token: token, State: StateTokenObtained}

	if token == "" {
		return c.reject(att, ErrEmptyToken)
	}

	att.State = StateValidating
	sess, err := c.verify.Verify(token)
	if err != nil {
		return c.reject(att, fmt.Errorf("%w: %w", ErrBadToken, err))
	}
	att.Session = sess

	if !schedule.WithinWindow(sess.Date, sess.Start, sess.End, now) {
		return c.reject(att, ErrOutOfWindow)
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return c.reject(att, ErrBusy)
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	att.State = StateSubmitting
	if err := c.redeem.Redeem(ctx, sess, token); err != nil {
		return c.reject(att, fmt.Errorf("%w: %w", ErrSubmission, err))
	}

	att.State = StateResolved
	redemptions.WithLabelValues("resolved").Inc()
	return att
}

func (c *Coordinator) reject(att Attempt, reason error) Attempt {
	att.State = StateRejected
	att.Reason = reason
	redemptions.WithLabelValues(outcomeLabel(reason)).Inc()
	return att
}

func outcomeLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrEmptyToken):
		return "empty_token"
	case errors.Is(reason, ErrBadToken):
		return "bad_token"
	case errors.Is(reason, ErrOutOfWindow):
		return "out_of_window"
	case errors.Is(reason, ErrBusy):
		return "busy"
	case errors.Is(reason, ErrSubmission):
		return "submission_failed"
	default:
		return "rejected"
	}
}

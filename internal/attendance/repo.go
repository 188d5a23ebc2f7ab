package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/reconcile"
)

// Event tracks one redemption through the pipeline: pending on insert,
// marked or duplicate after the write, audited once the worker has
// checked the date for data-quality issues.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	Date      time.Time `json:"lecture_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertUser ensures a user record exists with the given role.
func (r *Repository) UpsertUser(ctx context.Context, userID, role string) error {
	if userID == "" {
		return errors.New("user id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, role)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, userID, role)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

// ListRecords returns a student's attendance facts for one course in
// insertion order, the order the merge's first-match tolerance relies on.
func (r *Repository) ListRecords(ctx context.Context, courseID, studentID string) ([]reconcile.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT lecture_date, status FROM attendance_records
		WHERE course_id = $1 AND student_id = $2
		ORDER BY created_at, id
	`, courseID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reconcile.Record
	for rows.Next() {
		var rec reconcile.Record
		if err := rows.Scan(&rec.Date, &rec.Status); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertRecord writes one attendance fact. Returns false when a record
// for that (course, student, date) already exists; the existing row wins.
func (r *Repository) InsertRecord(ctx context.Context, courseID, studentID string, date time.Time, status string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, course_id, student_id, lecture_date, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (course_id, student_id, lecture_date) DO NOTHING
	`, uuid.NewString(), courseID, studentID, date, status)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountRecordsOn counts records for one student and date, for the
// duplicate-record audit.
func (r *Repository) CountRecordsOn(ctx context.Context, courseID, studentID string, date time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM attendance_records
		WHERE course_id = $1 AND student_id = $2 AND lecture_date = $3
	`, courseID, studentID, date).Scan(&n)
	return n, err
}

// InsertEvent writes a new marking event.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Status == "" {
		evt.Status = "pending"
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO marking_events (id, user_id, course_id, lecture_date, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, evt.ID, evt.UserID, evt.CourseID, evt.Date, evt.Status)
	if err := row.Scan(&evt.CreatedAt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// GetEvent returns a single event by id.
func (r *Repository) GetEvent(ctx context.Context, id string) (Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, lecture_date, status, created_at
		FROM marking_events WHERE id = $1
	`, id)
	var evt Event
	if err := row.Scan(&evt.ID, &evt.UserID, &evt.CourseID, &evt.Date, &evt.Status, &evt.CreatedAt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// UpdateEventStatus updates an event after the write or the audit.
func (r *Repository) UpdateEventStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE marking_events SET status = $2 WHERE id = $1
	`, id, status)
	return err
}

// ListEvents returns recent marking events with basic filters.
func (r *Repository) ListEvents(ctx context.Context, courseID, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, course_id, lecture_date, status, created_at
		FROM marking_events
		WHERE ($1 = '' OR course_id::text = $1) AND ($2 = '' OR user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, courseID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.UserID, &evt.CourseID, &evt.Date, &evt.Status, &evt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

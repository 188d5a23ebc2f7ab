package course

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"classtrack/internal/schedule"
)

// Course is a catalog entry with its recurring weekly meetings.
type Course struct {
	ID            string                `json:"id"`
	Code          string                `json:"code"`
	Name          string                `json:"name"`
	TeacherID     string                `json:"teacher_id"`
	SemesterStart time.Time             `json:"semester_start"`
	Months        int                   `json:"semester_months"`
	Slots         []schedule.WeeklySlot `json:"schedule"`
}

// Repository reads courses and their slots from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const courseCols = `id, code, name, teacher_id, semester_start, semester_months`

// Get returns one course with its slots, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+courseCols+` FROM courses WHERE id = $1
	`, id)
	c, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadSlots(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListForStudent returns the courses a student is enrolled in.
func (r *Repository) ListForStudent(ctx context.Context, studentID string) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+courseCols+` FROM courses
		WHERE id IN (SELECT course_id FROM enrollments WHERE student_id = $1)
		ORDER BY code
	`, studentID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

// ListForTeacher returns the courses a teacher runs.
func (r *Repository) ListForTeacher(ctx context.Context, teacherID string) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+courseCols+` FROM courses WHERE teacher_id = $1 ORDER BY code
	`, teacherID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

// IsEnrolled reports whether a student is enrolled in a course.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM enrollments WHERE course_id = $1 AND student_id = $2
	`, courseID, studentID).Scan(&n)
	return n > 0, err
}

func (r *Repository) collect(ctx context.Context, rows *sql.Rows) ([]Course, error) {
	defer rows.Close()
	var out []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadSlots(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(row scanner) (*Course, error) {
	var c Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.TeacherID, &c.SemesterStart, &c.Months); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadSlots reads a course's weekly slots. Rows that fail to parse are
// skipped with a warning so one bad slot never blocks the course from
// reconciling; the day+start uniqueness is backed by a DB constraint but
// re-checked here against legacy data.
func (r *Repository) loadSlots(ctx context.Context, c *Course) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, start_time, end_time FROM weekly_slots
		WHERE course_id = $1 ORDER BY id
	`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var day, start, end string
		if err := rows.Scan(&day, &start, &end); err != nil {
			return err
		}
		slot, err := parseSlot(day, start, end)
		if err != nil {
			log.Printf("course %s: skipping malformed slot (%s %s-%s): %v", c.ID, day, start, end, err)
			continue
		}
		key := day + "|" + start
		if seen[key] {
			log.Printf("course %s: duplicate slot %s %s, keeping first", c.ID, day, start)
			continue
		}
		seen[key] = true
		c.Slots = append(c.Slots, slot)
	}
	return rows.Err()
}

func parseSlot(day, start, end string) (schedule.WeeklySlot, error) {
	wd, ok := schedule.ParseWeekday(day)
	if !ok {
		return schedule.WeeklySlot{}, errors.New("unknown weekday")
	}
	s, err := schedule.ParseClock(start)
	if err != nil {
		return schedule.WeeklySlot{}, err
	}
	e, err := schedule.ParseClock(end)
	if err != nil {
		return schedule.WeeklySlot{}, err
	}
	return schedule.WeeklySlot{Day: wd, Start: s, End: e}, nil
}

package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new session. A unique violation on session_code is reported
// as ErrCodeTaken so the caller can regenerate and retry.
func (r *Repository) Insert(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions
			(id, school_id, lecturer_id, lecturer_name, course_code, course_title, date, session_code, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.SchoolID, s.LecturerID, s.LecturerName, s.CourseCode, s.CourseTitle, s.Date, s.Code, s.IsActive, s.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrCodeTaken
	}
	return err
}

const sessionColumns = `id, school_id, lecturer_id, lecturer_name, course_code, course_title, date, session_code, is_active, closed_at, created_at`

// GetByID returns a session scoped to a school.
func (r *Repository) GetByID(ctx context.Context, schoolID, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE school_id = $1 AND id = $2
	`, schoolID, id)
	return scanSession(row)
}

// GetByCode returns a session by its unique code, scoped to a school. No
// active/expiry filtering happens here; callers decide validity.
func (r *Repository) GetByCode(ctx context.Context, schoolID, code string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE school_id = $1 AND session_code = $2
	`, schoolID, code)
	return scanSession(row)
}

// Close marks a session inactive. The is_active guard makes a repeated close a
// no-op so closed_at keeps its first value.
func (r *Repository) Close(ctx context.Context, schoolID, id string, closedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET is_active = FALSE, closed_at = $3
		WHERE school_id = $1 AND id = $2 AND is_active = TRUE
	`, schoolID, id, closedAt)
	return err
}

// ListForLecturer returns a lecturer's sessions, newest first.
func (r *Repository) ListForLecturer(ctx context.Context, schoolID, lecturerID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE school_id = $1 AND lecturer_id = $2
		ORDER BY created_at DESC
	`, schoolID, lecturerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.SchoolID, &s.LecturerID, &s.LecturerName, &s.CourseCode, &s.CourseTitle, &s.Date, &s.Code, &s.IsActive, &s.ClosedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.SchoolID, &s.LecturerID, &s.LecturerName, &s.CourseCode, &s.CourseTitle, &s.Date, &s.Code, &s.IsActive, &s.ClosedAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

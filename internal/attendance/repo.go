package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, school_id, student_id, student_name, lecturer_id, lecturer_name, session_id, course_code, course_title, date, status, created_at`

// Find returns the record for a (student, session) pair, or nil when absent.
func (r *Repository) Find(ctx context.Context, schoolID, studentID, sessionID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE school_id = $1 AND student_id = $2 AND session_id = $3
	`, schoolID, studentID, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert appends a new record. The UNIQUE (student_id, session_id) constraint
// is the source of truth for the one-mark-per-session invariant; a violation
// is reported as ErrDuplicate, never as a fatal error.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, school_id, student_id, student_name, lecturer_id, lecturer_name, session_id, course_code, course_title, date, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at
	`, rec.ID, rec.SchoolID, rec.StudentID, rec.StudentName, rec.LecturerID, rec.LecturerName,
		nullable(rec.SessionID), rec.CourseCode, rec.CourseTitle, rec.Date, rec.Status)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, schoolID, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE school_id = $1 AND id = $2
	`, schoolID, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// ListForStudent returns a student's records, newest first.
func (r *Repository) ListForStudent(ctx context.Context, schoolID, studentID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE school_id = $1 AND student_id = $2
		ORDER BY created_at DESC
	`, schoolID, studentID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ListForLecturer returns a lecturer's records with optional filters.
func (r *Repository) ListForLecturer(ctx context.Context, schoolID, lecturerID string, f Filters) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE school_id = $1 AND lecturer_id = $2`
	args := []any{schoolID, lecturerID}
	if f.Date != nil {
		args = append(args, *f.Date)
		query += fmt.Sprintf(" AND date = $%d", len(args))
	}
	if f.CourseCode != "" {
		args = append(args, f.CourseCode)
		query += fmt.Sprintf(" AND course_code = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// Delete removes a record permanently. There is no recovery path.
func (r *Repository) Delete(ctx context.Context, schoolID, id string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance_records WHERE school_id = $1 AND id = $2
	`, schoolID, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var sessionID sql.NullString
	err := row.Scan(&rec.ID, &rec.SchoolID, &rec.StudentID, &rec.StudentName, &rec.LecturerID, &rec.LecturerName,
		&sessionID, &rec.CourseCode, &rec.CourseTitle, &rec.Date, &rec.Status, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.SessionID = sessionID.String
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

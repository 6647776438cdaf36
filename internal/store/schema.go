package store

import "context"

// Statements are idempotent and applied one at a time; pgx rejects
// multi-statement strings over the extended protocol. Real migrations are
// managed outside this service.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		school_id  TEXT NOT NULL,
		role       TEXT NOT NULL,
		full_name  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_school ON users (school_id)`,
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id            TEXT PRIMARY KEY,
		school_id     TEXT NOT NULL,
		lecturer_id   TEXT NOT NULL,
		lecturer_name TEXT NOT NULL,
		course_code   TEXT NOT NULL,
		course_title  TEXT NOT NULL,
		date          DATE NOT NULL,
		session_code  TEXT NOT NULL UNIQUE,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		closed_at     TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_lecturer ON attendance_sessions (school_id, lecturer_id)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id            TEXT PRIMARY KEY,
		school_id     TEXT NOT NULL,
		student_id    TEXT NOT NULL,
		student_name  TEXT NOT NULL,
		lecturer_id   TEXT NOT NULL,
		lecturer_name TEXT NOT NULL,
		session_id    TEXT REFERENCES attendance_sessions (id),
		course_code   TEXT NOT NULL,
		course_title  TEXT NOT NULL,
		date          DATE NOT NULL,
		status        TEXT NOT NULL DEFAULT 'present',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_lecturer ON attendance_records (school_id, lecturer_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_records_student ON attendance_records (school_id, student_id)`,
}

// EnsureSchema creates the tables and constraints the service relies on. The
// composite UNIQUE on (student_id, session_id) is the source of truth for the
// one-mark-per-session invariant.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

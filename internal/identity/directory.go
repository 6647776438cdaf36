package identity

import (
	"context"
	"database/sql"
	"errors"
)

// ErrUnknownUser is returned when no user matches the id within the school.
var ErrUnknownUser = errors.New("unknown user")

// Directory resolves display names for principals. Attendance snapshots copy
// these names at mark-time, so the directory is only consulted on writes.
type Directory interface {
	FullName(ctx context.Context, schoolID, userID string) (string, error)
}

// PGDirectory reads the users table maintained by the identity collaborator.
type PGDirectory struct {
	db *sql.DB
}

// NewPGDirectory creates a directory backed by Postgres.
func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

// FullName returns the user's display name scoped to a school.
func (d *PGDirectory) FullName(ctx context.Context, schoolID, userID string) (string, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT full_name FROM users WHERE school_id = $1 AND id = $2
	`, schoolID, userID)
	var name string
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUnknownUser
		}
		return "", err
	}
	return name, nil
}

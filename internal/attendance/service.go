package attendance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"rollcall/internal/identity"
	"rollcall/internal/session"
)

// Ledger is the persistence surface for attendance records.
type Ledger interface {
	Find(ctx context.Context, schoolID, studentID, sessionID string) (*Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, schoolID, id string) (Record, error)
	ListForStudent(ctx context.Context, schoolID, studentID string) ([]Record, error)
	ListForLecturer(ctx context.Context, schoolID, lecturerID string, f Filters) ([]Record, error)
	Delete(ctx context.Context, schoolID, id string) error
}

// Sessions is the slice of the lifecycle manager the redemption flow needs.
type Sessions interface {
	ResolveByCode(ctx context.Context, schoolID, code string) (session.Session, error)
	Get(ctx context.Context, schoolID, id string) (session.Session, error)
	IsExpired(sess session.Session) bool
}

// Service orchestrates code redemption and record access.
type Service struct {
	ledger    Ledger
	sessions  Sessions
	directory identity.Directory
}

// NewService creates the redemption service.
func NewService(ledger Ledger, sessions Sessions, directory identity.Directory) *Service {
	return &Service{ledger: ledger, sessions: sessions, directory: directory}
}

// Mark redeems a session code (or session id) for the student. The sequence is
// resolve, validate, pre-check, insert; the insert's unique constraint is what
// actually guarantees at most one record per (student, session) pair under
// concurrent submits, so a constraint rejection surfaces as ErrDuplicate like
// a pre-check hit would.
func (s *Service) Mark(ctx context.Context, schoolID, studentID, code, sessionID string) (Record, error) {
	var sess session.Session
	var err error
	switch {
	case code != "":
		sess, err = s.sessions.ResolveByCode(ctx, schoolID, code)
	case sessionID != "":
		sess, err = s.sessions.Get(ctx, schoolID, sessionID)
	default:
		return Record{}, fmt.Errorf("%w: session code or id required", session.ErrInvalidInput)
	}
	if err != nil {
		return Record{}, err
	}

	if !sess.IsActive || s.sessions.IsExpired(sess) {
		return Record{}, session.ErrExpired
	}

	existing, err := s.ledger.Find(ctx, schoolID, studentID, sess.ID)
	if err != nil {
		return Record{}, err
	}
	if existing != nil {
		return Record{}, ErrDuplicate
	}

	studentName, err := s.directory.FullName(ctx, schoolID, studentID)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:           uuid.NewString(),
		SchoolID:     schoolID,
		StudentID:    studentID,
		StudentName:  studentName,
		LecturerID:   sess.LecturerID,
		LecturerName: sess.LecturerName,
		SessionID:    sess.ID,
		CourseCode:   sess.CourseCode,
		CourseTitle:  sess.CourseTitle,
		Date:         sess.Date,
		Status:       DefaultStatus,
	}
	return s.ledger.Insert(ctx, rec)
}

// Marked reports whether the student already holds a record for the session.
func (s *Service) Marked(ctx context.Context, schoolID, studentID, sessionID string) (bool, error) {
	existing, err := s.ledger.Find(ctx, schoolID, studentID, sessionID)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// RecordsForStudent lists the student's own records.
func (s *Service) RecordsForStudent(ctx context.Context, schoolID, studentID string) ([]Record, error) {
	return s.ledger.ListForStudent(ctx, schoolID, studentID)
}

// RecordsForLecturer lists records the lecturer owns, with optional filters.
func (s *Service) RecordsForLecturer(ctx context.Context, schoolID, lecturerID string, f Filters) ([]Record, error) {
	return s.ledger.ListForLecturer(ctx, schoolID, lecturerID, f)
}

// Delete hard-deletes a record after verifying the lecturer owns it.
func (s *Service) Delete(ctx context.Context, schoolID, lecturerID, recordID string) error {
	rec, err := s.ledger.Get(ctx, schoolID, recordID)
	if err != nil {
		return err
	}
	if rec.LecturerID != lecturerID {
		return ErrNotOwner
	}
	return s.ledger.Delete(ctx, schoolID, recordID)
}

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/identity"
)

// Store is the persistence surface the lifecycle manager needs.
type Store interface {
	Insert(ctx context.Context, s Session) error
	GetByID(ctx context.Context, schoolID, id string) (Session, error)
	GetByCode(ctx context.Context, schoolID, code string) (Session, error)
	Close(ctx context.Context, schoolID, id string, closedAt time.Time) error
	ListForLecturer(ctx context.Context, schoolID, lecturerID string) ([]Session, error)
}

// Service owns the session lifecycle: open, close, lookup and expiry policy.
type Service struct {
	store     Store
	directory identity.Directory
	attempts  int
	now       func() time.Time
}

// NewService creates a lifecycle manager. attempts bounds the regenerate-and-
// retry loop used when a freshly generated code collides.
func NewService(store Store, directory identity.Directory, attempts int) *Service {
	if attempts <= 0 {
		attempts = 5
	}
	return &Service{store: store, directory: directory, attempts: attempts, now: time.Now}
}

// Open creates a new active session with a freshly generated unique code.
func (s *Service) Open(ctx context.Context, schoolID, lecturerID, courseCode, courseTitle string, date time.Time) (Session, error) {
	if courseCode == "" {
		return Session{}, fmt.Errorf("%w: course code required", ErrInvalidInput)
	}
	if courseTitle == "" {
		return Session{}, fmt.Errorf("%w: course title required", ErrInvalidInput)
	}
	if date.IsZero() {
		return Session{}, fmt.Errorf("%w: date required", ErrInvalidInput)
	}

	lecturerName, err := s.directory.FullName(ctx, schoolID, lecturerID)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:           uuid.NewString(),
		SchoolID:     schoolID,
		LecturerID:   lecturerID,
		LecturerName: lecturerName,
		CourseCode:   courseCode,
		CourseTitle:  courseTitle,
		Date:         date,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}

	for i := 0; i < s.attempts; i++ {
		sess.Code = GenerateCode()
		err = s.store.Insert(ctx, sess)
		if err == nil {
			return sess, nil
		}
		if err != ErrCodeTaken {
			return Session{}, err
		}
	}
	return Session{}, fmt.Errorf("could not allocate a unique session code after %d attempts: %w", s.attempts, err)
}

// Close transitions a session to closed. Closing an already-closed session is
// an idempotent success; closed_at keeps its original value.
func (s *Service) Close(ctx context.Context, schoolID, lecturerID, sessionID string) (Session, error) {
	sess, err := s.store.GetByID(ctx, schoolID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.LecturerID != lecturerID {
		return Session{}, ErrNotOwner
	}
	if !sess.IsActive {
		return sess, nil
	}
	closedAt := s.now().UTC()
	if err := s.store.Close(ctx, schoolID, sessionID, closedAt); err != nil {
		return Session{}, err
	}
	sess.IsActive = false
	sess.ClosedAt = &closedAt
	return sess, nil
}

// ResolveByCode fetches a session by code without any validity filtering, so
// historical sessions stay reachable for admin tooling.
func (s *Service) ResolveByCode(ctx context.Context, schoolID, code string) (Session, error) {
	return s.store.GetByCode(ctx, schoolID, code)
}

// Get fetches a session by id.
func (s *Service) Get(ctx context.Context, schoolID, id string) (Session, error) {
	return s.store.GetByID(ctx, schoolID, id)
}

// ListForLecturer returns the lecturer's sessions, newest first.
func (s *Service) ListForLecturer(ctx context.Context, schoolID, lecturerID string) ([]Session, error) {
	return s.store.ListForLecturer(ctx, schoolID, lecturerID)
}

// Verify resolves a code and checks that the session is still redeemable:
// explicitly open and not past its calendar date. The two signals are
// independent and both must hold.
func (s *Service) Verify(ctx context.Context, schoolID, code string) (Session, error) {
	sess, err := s.store.GetByCode(ctx, schoolID, code)
	if err != nil {
		return Session{}, err
	}
	if !sess.IsActive || s.IsExpired(sess) {
		return Session{}, ErrExpired
	}
	return sess, nil
}

// IsExpired reports whether the session's calendar date has passed. A session
// is valid for the whole of its date regardless of the time it was opened.
func (s *Service) IsExpired(sess Session) bool {
	return startOfDay(sess.Date).Before(startOfDay(s.now().UTC()))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

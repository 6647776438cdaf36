package session

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by the lifecycle manager.
var (
	// ErrNotFound means no session matches the id or code within the school.
	ErrNotFound = errors.New("session not found")
	// ErrExpired covers both explicit closure and date-based expiry.
	ErrExpired = errors.New("session is expired")
	// ErrNotOwner means the acting lecturer does not own the session.
	ErrNotOwner = errors.New("session belongs to another lecturer")
	// ErrInvalidInput flags malformed open requests.
	ErrInvalidInput = errors.New("invalid session input")
	// ErrCodeTaken is returned by the store when a generated code collides.
	ErrCodeTaken = errors.New("session code already in use")
)

// Session is one lecturer-initiated attendance window. Codes are unique across
// all schools for all time and are never reused after closure. Course fields
// and the lecturer name are snapshots taken when the session is opened.
type Session struct {
	ID           string     `json:"id"`
	SchoolID     string     `json:"school_id"`
	LecturerID   string     `json:"lecturer_id"`
	LecturerName string     `json:"lecturer_name"`
	CourseCode   string     `json:"course_code"`
	CourseTitle  string     `json:"course_title"`
	Date         time.Time  `json:"date"`
	Code         string     `json:"session_code"`
	IsActive     bool       `json:"is_active"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

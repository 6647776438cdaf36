package attendance

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by the ledger and redemption flow.
var (
	// ErrDuplicate means this student already holds a record for the session,
	// whether caught by the pre-check or by the storage constraint.
	ErrDuplicate = errors.New("attendance already marked for this session")
	// ErrNotFound means no record matches the id within the school.
	ErrNotFound = errors.New("attendance record not found")
	// ErrNotOwner means the acting lecturer does not own the record.
	ErrNotOwner = errors.New("attendance record belongs to another lecturer")
)

// DefaultStatus is applied to records created through code redemption.
const DefaultStatus = "present"

// Record is one student's presence fact for one session. Name and course
// fields are snapshots copied at mark-time; they never track later changes to
// the underlying user or course. SessionID is empty only on legacy back-filled
// rows. Records are never updated in place.
type Record struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"school_id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	LecturerID   string    `json:"lecturer_id"`
	LecturerName string    `json:"lecturer_name"`
	SessionID    string    `json:"session_id,omitempty"`
	CourseCode   string    `json:"course_code"`
	CourseTitle  string    `json:"course_title"`
	Date         time.Time `json:"date"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filters narrows lecturer record listings.
type Filters struct {
	Date       *time.Time
	CourseCode string
}

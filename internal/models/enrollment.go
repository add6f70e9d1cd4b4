package models

import "time"

// EnrollmentScope distinguishes course-wide access from single-chapter access.
type EnrollmentScope string

const (
	EnrollmentScopeCourse  EnrollmentScope = "COURSE"
	EnrollmentScopeChapter EnrollmentScope = "CHAPTER"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. EXPIRED is terminal for everything except
// the explicit reactivation path.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusExpired   EnrollmentStatus = "EXPIRED"
)

// Enrollment captures a student's access grant to a course or chapter.
// CourseID is always populated, including for chapter-scoped rows, so
// scope-independent queries never need to join through chapters.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"user_id"`
	Scope           EnrollmentScope  `db:"scope" json:"scope"`
	ScopeID         string           `db:"scope_id" json:"scope_id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt      time.Time        `db:"enrolled_at" json:"enrolled_at"`
	ActivatedAt     *time.Time       `db:"activated_at" json:"activated_at,omitempty"`
	ActivatedBy     *string          `db:"activated_by" json:"activated_by,omitempty"`
	SuspendedAt     *time.Time       `db:"suspended_at" json:"suspended_at,omitempty"`
	SuspendedBy     *string          `db:"suspended_by" json:"suspended_by,omitempty"`
	SuspendedReason *string          `db:"suspended_reason" json:"suspended_reason,omitempty"`
	ExpiredAt       *time.Time       `db:"expired_at" json:"expired_at,omitempty"`
	Progress        int              `db:"progress" json:"progress"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseName   string `db:"course_name" json:"course_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID    string
	CourseID  string
	Scope     EnrollmentScope
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

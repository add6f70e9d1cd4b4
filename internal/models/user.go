package models

import "time"

// UserRole represents the roles provided by the identity service.
type UserRole string

const (
	RoleStudent   UserRole = "STUDENT"
	RoleAssistant UserRole = "ASSISTANT"
	RoleAdmin     UserRole = "ADMIN"
)

// IsStaff reports whether the role belongs to back-office staff. Staff are
// never implicit notification recipients.
func (r UserRole) IsStaff() bool {
	return r == RoleAssistant || r == RoleAdmin
}

// AttendanceMode distinguishes in-center cohorts from online-only students.
type AttendanceMode string

const (
	AttendanceModeCenter AttendanceMode = "CENTER"
	AttendanceModeOnline AttendanceMode = "ONLINE"
)

// User represents an account mirrored from the identity service together
// with the academic profile maintained by the platform.
type User struct {
	ID             string         `db:"id" json:"id"`
	Email          string         `db:"email" json:"email"`
	FullName       string         `db:"full_name" json:"full_name"`
	Phone          string         `db:"phone" json:"phone"`
	Role           UserRole       `db:"role" json:"role"`
	AcademicYear   string         `db:"academic_year" json:"academic_year"`
	LanguageTrack  string         `db:"language_track" json:"language_track"`
	AttendanceMode AttendanceMode `db:"attendance_mode" json:"attendance_mode"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role           *UserRole
	AcademicYear   string
	AttendanceMode AttendanceMode
	Search         string
	Active         *bool
	Page           int
	PageSize       int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

package models

import "time"

// ActivitySummary is the point-in-time snapshot captured when an enrollment
// is terminated. Historical reporting reads these rows instead of live data.
type ActivitySummary struct {
	ID             string    `db:"id" json:"id"`
	EnrollmentID   string    `db:"enrollment_id" json:"enrollment_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	Progress       int       `db:"progress" json:"progress"`
	AttendanceRate float64   `db:"attendance_rate" json:"attendance_rate"`
	ExamAverage    float64   `db:"exam_average" json:"exam_average"`
	GroupID        *string   `db:"group_id" json:"group_id,omitempty"`
	FrozenBy       string    `db:"frozen_by" json:"frozen_by"`
	FrozenAt       time.Time `db:"frozen_at" json:"frozen_at"`
}

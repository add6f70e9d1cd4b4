package models

import "time"

// CenterGroup is a fixed in-person cohort sharing a schedule, grade and
// language track.
type CenterGroup struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Grade         string    `db:"grade" json:"grade"`
	LanguageTrack string    `db:"language_track" json:"language_track"`
	ScheduleDays  string    `db:"schedule_days" json:"schedule_days"`
	ScheduleTime  string    `db:"schedule_time" json:"schedule_time"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether a student profile may hold active membership in
// the group.
func (g CenterGroup) Eligible(academicYear, languageTrack string) bool {
	return g.Grade == academicYear && g.LanguageTrack == languageTrack
}

// GroupMembership links a student to a center group. At most one row per
// student carries is_active = true; inactive rows are retained for
// reporting continuity and may be reactivated by a later transfer back.
type GroupMembership struct {
	ID         string    `db:"id" json:"id"`
	GroupID    string    `db:"group_id" json:"group_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// MembershipDetail enriches GroupMembership with display fields.
type MembershipDetail struct {
	GroupMembership
	StudentName string `db:"student_name" json:"student_name"`
	GroupName   string `db:"group_name" json:"group_name"`
}

// TransferRecord is the append-only audit entry written once per transfer.
// Rows are never mutated after creation.
type TransferRecord struct {
	ID              string    `db:"id" json:"id"`
	StudentID       string    `db:"student_id" json:"student_id"`
	PreviousGroupID *string   `db:"previous_group_id" json:"previous_group_id,omitempty"`
	NewGroupID      string    `db:"new_group_id" json:"new_group_id"`
	PerformedBy     string    `db:"performed_by" json:"performed_by"`
	Reason          *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

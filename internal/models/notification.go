package models

import "time"

// NotificationTargetType enumerates supported targeting variants.
type NotificationTargetType string

const (
	TargetAll            NotificationTargetType = "ALL"
	TargetCourse         NotificationTargetType = "COURSE"
	TargetLesson         NotificationTargetType = "LESSON"
	TargetGrade          NotificationTargetType = "GRADE"
	TargetAttendanceMode NotificationTargetType = "ATTENDANCE_MODE"
	TargetExplicit       NotificationTargetType = "EXPLICIT"
	TargetNotEnrolled    NotificationTargetType = "NOT_ENROLLED"
	TargetCustomFilter   NotificationTargetType = "CUSTOM_FILTER"
)

// FilterCondition selects students by their relationship to an exam.
type FilterCondition string

const (
	ConditionNotTaken   FilterCondition = "NOT_TAKEN"
	ConditionBelowScore FilterCondition = "BELOW_SCORE"
	ConditionAboveScore FilterCondition = "ABOVE_SCORE"
)

// CustomFilter narrows an audience by exam performance. Threshold is a
// percentage of the exam's max score.
type CustomFilter struct {
	ExamID    string          `json:"exam_id"`
	Condition FilterCondition `json:"condition"`
	Threshold float64         `json:"threshold"`
}

// TargetSpec is the value object describing who a dispatch should reach.
// It lives only for the duration of a request and is never persisted.
type TargetSpec struct {
	Type           NotificationTargetType `json:"type"`
	CourseID       string                 `json:"course_id,omitempty"`
	LessonID       string                 `json:"lesson_id,omitempty"`
	Grade          string                 `json:"grade,omitempty"`
	AttendanceMode AttendanceMode         `json:"attendance_mode,omitempty"`
	UserIDs        []string               `json:"user_ids,omitempty"`
	Filter         *CustomFilter          `json:"filter,omitempty"`
	Search         string                 `json:"search,omitempty"`
}

// Resolution is the audience resolver output. Broadcast variants do not
// materialize recipients; the read side matches viewers against the scope.
type Resolution struct {
	Broadcast  bool     `json:"broadcast"`
	Recipients []string `json:"recipients"`
}

// Notification is a persisted notification row. Broadcast sends store a
// single row with RecipientID nil; explicit sends store one row per
// recipient, each independently marked read/unread.
type Notification struct {
	ID          string                 `db:"id" json:"id"`
	Type        string                 `db:"type" json:"type"`
	Title       string                 `db:"title" json:"title"`
	Message     string                 `db:"message" json:"message"`
	TitleAlt    string                 `db:"title_alt" json:"title_alt,omitempty"`
	MessageAlt  string                 `db:"message_alt" json:"message_alt,omitempty"`
	TargetType  NotificationTargetType `db:"target_type" json:"target_type"`
	TargetID    *string                `db:"target_id" json:"target_id,omitempty"`
	TargetValue *string                `db:"target_value" json:"target_value,omitempty"`
	RecipientID *string                `db:"recipient_id" json:"recipient_id,omitempty"`
	IsRead      bool                   `db:"is_read" json:"is_read"`
	SenderID    string                 `db:"sender_id" json:"sender_id"`
	CourseID    *string                `db:"course_id" json:"course_id,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

// NotificationFilter constrains back-office listing queries.
type NotificationFilter struct {
	SenderID   string
	TargetType NotificationTargetType
	CourseID   string
	Page       int
	PageSize   int
}

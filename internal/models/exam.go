package models

import "time"

// Exam describes a scored assessment within a course.
type Exam struct {
	ID       string  `db:"id" json:"id"`
	CourseID string  `db:"course_id" json:"course_id"`
	Title    string  `db:"title" json:"title"`
	MaxScore float64 `db:"max_score" json:"max_score"`
	PassMark float64 `db:"pass_mark" json:"pass_mark"`
}

// ExamAttempt records a student's attempt. Only completed attempts count
// toward audience filters.
type ExamAttempt struct {
	ID          string     `db:"id" json:"id"`
	ExamID      string     `db:"exam_id" json:"exam_id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	GroupID     *string    `db:"group_id" json:"group_id,omitempty"`
	Score       float64    `db:"score" json:"score"`
	Completed   bool       `db:"completed" json:"completed"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
}

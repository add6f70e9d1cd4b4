package models

import "time"

// Course groups chapters under one academic year and language track.
// PriceCents of zero marks a free course eligible for self-enrollment.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	AcademicYear  string    `db:"academic_year" json:"academic_year"`
	LanguageTrack string    `db:"language_track" json:"language_track"`
	PriceCents    int64     `db:"price_cents" json:"price_cents"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsFree reports whether enrollment activates immediately without payment.
func (c Course) IsFree() bool {
	return c.PriceCents == 0
}

// Chapter is a content unit within a course.
type Chapter struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	Name     string `db:"name" json:"name"`
	Position int    `db:"position" json:"position"`
}

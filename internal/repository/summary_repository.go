package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/madrasati/tuition-core-api/internal/models"
)

// SummaryRepository persists frozen activity summaries.
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository constructs the repository.
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Create inserts an activity summary snapshot.
func (r *SummaryRepository) Create(ctx context.Context, summary *models.ActivitySummary) error {
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.FrozenAt.IsZero() {
		summary.FrozenAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_summaries
        (id, enrollment_id, user_id, course_id, progress, attendance_rate, exam_average, group_id, frozen_by, frozen_at)
        VALUES (:id, :enrollment_id, :user_id, :course_id, :progress, :attendance_rate, :exam_average, :group_id, :frozen_by, :frozen_at)`
	if _, err := r.db.NamedExecContext(ctx, query, summary); err != nil {
		return fmt.Errorf("create activity summary: %w", err)
	}
	return nil
}

// FindByEnrollmentID returns the latest frozen summary for an enrollment.
func (r *SummaryRepository) FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.ActivitySummary, error) {
	const query = `SELECT id, enrollment_id, user_id, course_id, progress, attendance_rate, exam_average, group_id, frozen_by, frozen_at
        FROM activity_summaries WHERE enrollment_id = $1 ORDER BY frozen_at DESC LIMIT 1`
	var summary models.ActivitySummary
	if err := r.db.GetContext(ctx, &summary, query, enrollmentID); err != nil {
		return nil, err
	}
	return &summary, nil
}

// AttendanceRate computes the student's attended/held ratio for a course up
// to now. Held sessions of zero yields a rate of zero.
func (r *SummaryRepository) AttendanceRate(ctx context.Context, courseID, studentID string) (float64, error) {
	const query = `SELECT COALESCE(AVG(CASE WHEN present THEN 1.0 ELSE 0.0 END), 0)
        FROM attendance_records WHERE course_id = $1 AND student_id = $2`
	var rate float64
	if err := r.db.GetContext(ctx, &rate, query, courseID, studentID); err != nil {
		return 0, fmt.Errorf("attendance rate: %w", err)
	}
	return rate, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/madrasati/tuition-core-api/internal/models"
)

// ExamRepository reads exams and attempt results.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// FindByID fetches an exam by ID.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	const query = `SELECT id, course_id, title, max_score, pass_mark FROM exams WHERE id = $1`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// ListCompletedAttempts returns all completed attempts for an exam.
// In-progress attempts never count toward audience filters.
func (r *ExamRepository) ListCompletedAttempts(ctx context.Context, examID string) ([]models.ExamAttempt, error) {
	const query = `SELECT id, exam_id, student_id, group_id, score, completed, submitted_at
        FROM exam_attempts WHERE exam_id = $1 AND completed = true`
	var attempts []models.ExamAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, examID); err != nil {
		return nil, fmt.Errorf("list exam attempts: %w", err)
	}
	return attempts, nil
}

// ListCompletedAttemptsByStudent returns a student's completed attempts on a
// course, used when freezing activity summaries.
func (r *ExamRepository) ListCompletedAttemptsByStudent(ctx context.Context, courseID, studentID string) ([]models.ExamAttempt, error) {
	const query = `SELECT a.id, a.exam_id, a.student_id, a.group_id, a.score, a.completed, a.submitted_at
        FROM exam_attempts a
        JOIN exams x ON x.id = a.exam_id
        WHERE x.course_id = $1 AND a.student_id = $2 AND a.completed = true`
	var attempts []models.ExamAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("list student attempts: %w", err)
	}
	return attempts, nil
}

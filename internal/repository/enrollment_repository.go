package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/madrasati/tuition-core-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, user_id, scope, scope_id, course_id, status, enrolled_at,
        activated_at, activated_by, suspended_at, suspended_by, suspended_reason, expired_at, progress`

// List returns enrollments with student and course context.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.user_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Scope != "" {
		conditions = append(conditions, fmt.Sprintf("e.scope = $%d", len(args)+1))
		args = append(args, filter.Scope)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "u.full_name",
		"course_name":  "c.name",
		"status":       "e.status",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.user_id, e.scope, e.scope_id, e.course_id, e.status, e.enrolled_at,
        e.activated_at, e.activated_by, e.suspended_at, e.suspended_by, e.suspended_reason, e.expired_at, e.progress,
        u.full_name AS student_name, u.email AS student_email, c.name AS course_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with student and course context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.user_id, e.scope, e.scope_id, e.course_id, e.status, e.enrolled_at,
        e.activated_at, e.activated_by, e.suspended_at, e.suspended_by, e.suspended_reason, e.expired_at, e.progress,
        u.full_name AS student_name, u.email AS student_email, c.name AS course_name
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.user_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsForScope checks whether a non-expired enrollment already covers the
// same user and scope target.
func (r *EnrollmentRepository) ExistsForScope(ctx context.Context, userID string, scope models.EnrollmentScope, scopeID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE user_id = $1 AND scope = $2 AND scope_id = $3 AND status <> $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, scope, scopeID, models.EnrollmentStatusExpired); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment exists: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	const query = `INSERT INTO enrollments (id, user_id, scope, scope_id, course_id, status, enrolled_at,
        activated_at, activated_by, suspended_at, suspended_by, suspended_reason, expired_at, progress)
        VALUES (:id, :user_id, :scope, :scope_id, :course_id, :status, :enrolled_at,
        :activated_at, :activated_by, :suspended_at, :suspended_by, :suspended_reason, :expired_at, :progress)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// TransitionParams groups the column writes for a guarded status change.
// Pointer fields left nil are not touched.
type TransitionParams struct {
	ID              string
	Expected        models.EnrollmentStatus
	Next            models.EnrollmentStatus
	ActivatedAt     *time.Time
	ActivatedBy     *string
	SuspendedAt     *time.Time
	SuspendedBy     *string
	SuspendedReason *string
	ExpiredAt       *time.Time
	ClearSuspension bool
	ClearExpiry     bool
}

// UpdateStatusGuarded performs a conditional status update. The write only
// lands if the row still holds the expected status; a zero-row result is
// returned as sql.ErrNoRows so callers can surface a conflict.
func (r *EnrollmentRepository) UpdateStatusGuarded(ctx context.Context, params TransitionParams) error {
	setParts := []string{"status = :status"}
	namedArgs := map[string]interface{}{
		"id":       params.ID,
		"expected": params.Expected,
		"status":   params.Next,
	}
	if params.ActivatedAt != nil {
		setParts = append(setParts, "activated_at = :activated_at", "activated_by = :activated_by")
		namedArgs["activated_at"] = params.ActivatedAt
		namedArgs["activated_by"] = params.ActivatedBy
	}
	if params.SuspendedAt != nil {
		setParts = append(setParts, "suspended_at = :suspended_at", "suspended_by = :suspended_by", "suspended_reason = :suspended_reason")
		namedArgs["suspended_at"] = params.SuspendedAt
		namedArgs["suspended_by"] = params.SuspendedBy
		namedArgs["suspended_reason"] = params.SuspendedReason
	}
	if params.ClearSuspension {
		setParts = append(setParts, "suspended_at = NULL", "suspended_by = NULL", "suspended_reason = NULL")
	}
	if params.ExpiredAt != nil {
		setParts = append(setParts, "expired_at = :expired_at")
		namedArgs["expired_at"] = params.ExpiredAt
	}
	if params.ClearExpiry {
		setParts = append(setParts, "expired_at = NULL")
	}

	query := fmt.Sprintf("UPDATE enrollments SET %s WHERE id = :id AND status = :expected", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, namedArgs)
	if err != nil {
		return fmt.Errorf("transition enrollment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListActiveStudentIDsByCourse returns the IDs of students holding an active
// enrollment that grants course access (course scope, or any chapter of it).
func (r *EnrollmentRepository) ListActiveStudentIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM enrollments WHERE course_id = $1 AND status = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	return ids, nil
}

// ListActiveStudentIDsByChapter returns students whose active enrollment
// covers the chapter, either directly or through a course-wide grant.
func (r *EnrollmentRepository) ListActiveStudentIDsByChapter(ctx context.Context, chapterID, courseID string) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM enrollments
        WHERE status = $1 AND ((scope = $2 AND scope_id = $3) OR (scope = $4 AND scope_id = $5))`
	var ids []string
	err := r.db.SelectContext(ctx, &ids, query,
		models.EnrollmentStatusActive,
		models.EnrollmentScopeChapter, chapterID,
		models.EnrollmentScopeCourse, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chapter students: %w", err)
	}
	return ids, nil
}

// ListCandidateStudentIDs returns students holding any enrollment row on the
// course, regardless of status. Exam-performance filters draw from this set.
func (r *EnrollmentRepository) ListCandidateStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM enrollments WHERE course_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list candidate students: %w", err)
	}
	return ids, nil
}

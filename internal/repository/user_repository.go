package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/madrasati/tuition-core-api/internal/models"
)

// UserRepository reads the user roster. Accounts are provisioned by the
// identity service; this API only queries them.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID fetches a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, full_name, phone, role, academic_year, language_track, attendance_mode, active, created_at, updated_at
        FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByIDs fetches users for the given IDs, chunked to keep queries bounded.
func (r *UserRepository) ListByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	const chunkSize = 100
	users := make([]models.User, 0, len(ids))
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		query := fmt.Sprintf(`SELECT id, email, full_name, phone, role, academic_year, language_track, attendance_mode, active, created_at, updated_at
            FROM users WHERE id IN (%s)`, strings.Join(placeholders, ","))
		var batch []models.User
		if err := r.db.SelectContext(ctx, &batch, query, args...); err != nil {
			return nil, fmt.Errorf("list users by ids: %w", err)
		}
		users = append(users, batch...)
	}
	return users, nil
}

// ListStudents returns students matching the filter. Staff accounts are
// never returned regardless of filter values.
func (r *UserRepository) ListStudents(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	conditions := []string{"role = $1", "active = true"}
	args := []interface{}{models.RoleStudent}

	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.AttendanceMode != "" {
		conditions = append(conditions, fmt.Sprintf("attendance_mode = $%d", len(args)+1))
		args = append(args, filter.AttendanceMode)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(phone) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	query := fmt.Sprintf(`SELECT id, email, full_name, phone, role, academic_year, language_track, attendance_mode, active, created_at, updated_at
        FROM users WHERE %s ORDER BY full_name ASC`, strings.Join(conditions, " AND "))

	var students []models.User
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListStudentIDsNotEnrolled returns active students without a single
// enrollment row, whatever its course or status.
func (r *UserRepository) ListStudentIDsNotEnrolled(ctx context.Context) ([]string, error) {
	const query = `SELECT u.id FROM users u
        WHERE u.role = $1 AND u.active = true
        AND NOT EXISTS (SELECT 1 FROM enrollments e WHERE e.user_id = u.id)
        ORDER BY u.full_name ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.RoleStudent); err != nil {
		return nil, fmt.Errorf("list not-enrolled students: %w", err)
	}
	return ids, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/madrasati/tuition-core-api/internal/models"
)

// GroupRepository persists center groups, memberships and transfer records.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// ListGroups returns center groups, optionally scoped to a grade.
func (r *GroupRepository) ListGroups(ctx context.Context, grade string) ([]models.CenterGroup, error) {
	query := `SELECT id, name, grade, language_track, schedule_days, schedule_time, active, created_at, updated_at
        FROM center_groups WHERE active = true`
	args := []interface{}{}
	if grade != "" {
		query += " AND grade = $1"
		args = append(args, grade)
	}
	query += " ORDER BY name ASC"

	var groups []models.CenterGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// FindGroupByID fetches a center group.
func (r *GroupRepository) FindGroupByID(ctx context.Context, id string) (*models.CenterGroup, error) {
	const query = `SELECT id, name, grade, language_track, schedule_days, schedule_time, active, created_at, updated_at
        FROM center_groups WHERE id = $1`
	var group models.CenterGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListMembers returns memberships of a group. Inactive rows are included
// when activeOnly is false so reporting can see historical members.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string, activeOnly bool) ([]models.MembershipDetail, error) {
	query := `SELECT m.id, m.group_id, m.student_id, m.is_active, m.enrolled_at,
        u.full_name AS student_name, g.name AS group_name
        FROM group_memberships m
        LEFT JOIN users u ON u.id = m.student_id
        LEFT JOIN center_groups g ON g.id = m.group_id
        WHERE m.group_id = $1`
	if activeOnly {
		query += " AND m.is_active = true"
	}
	query += " ORDER BY u.full_name ASC"

	var members []models.MembershipDetail
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// FindActiveMembership returns the student's active membership, if any.
func (r *GroupRepository) FindActiveMembership(ctx context.Context, studentID string) (*models.GroupMembership, error) {
	const query = `SELECT id, group_id, student_id, is_active, enrolled_at
        FROM group_memberships WHERE student_id = $1 AND is_active = true LIMIT 1`
	var membership models.GroupMembership
	if err := r.db.GetContext(ctx, &membership, query, studentID); err != nil {
		return nil, err
	}
	return &membership, nil
}

// DeactivateMembership clears the active flag on a membership row. The row
// itself is retained; historical attendance keeps pointing at it.
func (r *GroupRepository) DeactivateMembership(ctx context.Context, id string) error {
	const query = `UPDATE group_memberships SET is_active = false WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	return nil
}

// ReactivateOrCreateMembership flips a prior membership in the group back to
// active, or inserts a fresh row when the student never belonged to it.
func (r *GroupRepository) ReactivateOrCreateMembership(ctx context.Context, groupID, studentID string) (*models.GroupMembership, error) {
	const update = `UPDATE group_memberships SET is_active = true
        WHERE group_id = $1 AND student_id = $2
        RETURNING id, group_id, student_id, is_active, enrolled_at`
	var membership models.GroupMembership
	err := r.db.GetContext(ctx, &membership, update, groupID, studentID)
	if err == nil {
		return &membership, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("reactivate membership: %w", err)
	}

	membership = models.GroupMembership{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		StudentID:  studentID,
		IsActive:   true,
		EnrolledAt: time.Now().UTC(),
	}
	const insert = `INSERT INTO group_memberships (id, group_id, student_id, is_active, enrolled_at)
        VALUES (:id, :group_id, :student_id, :is_active, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, &membership); err != nil {
		return nil, fmt.Errorf("create membership: %w", err)
	}
	return &membership, nil
}

// CreateTransferRecord appends a transfer record. Records are immutable.
func (r *GroupRepository) CreateTransferRecord(ctx context.Context, record *models.TransferRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO transfer_records (id, student_id, previous_group_id, new_group_id, performed_by, reason, created_at)
        VALUES (:id, :student_id, :previous_group_id, :new_group_id, :performed_by, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create transfer record: %w", err)
	}
	return nil
}

// ListTransfersByStudent returns a student's transfer history, latest first.
func (r *GroupRepository) ListTransfersByStudent(ctx context.Context, studentID string) ([]models.TransferRecord, error) {
	const query = `SELECT id, student_id, previous_group_id, new_group_id, performed_by, reason, created_at
        FROM transfer_records WHERE student_id = $1 ORDER BY created_at DESC`
	var records []models.TransferRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return records, nil
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/madrasati/tuition-core-api/internal/models"
)

// NotificationRepository persists notification rows.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationInsert = `INSERT INTO notifications
    (id, type, title, message, title_alt, message_alt, target_type, target_id, target_value, recipient_id, is_read, sender_id, course_id, created_at)
    VALUES (:id, :type, :title, :message, :title_alt, :message_alt, :target_type, :target_id, :target_value, :recipient_id, :is_read, :sender_id, :course_id, :created_at)`

// CreateBroadcast stores a single scope-matched row with no recipient. The
// read side matches viewers against the target columns.
func (r *NotificationRepository) CreateBroadcast(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	notification.RecipientID = nil
	if _, err := r.db.NamedExecContext(ctx, notificationInsert, notification); err != nil {
		return fmt.Errorf("create broadcast notification: %w", err)
	}
	return nil
}

// CreateForRecipients stores one row per recipient inside a transaction so a
// dispatch is never half-persisted.
func (r *NotificationRepository) CreateForRecipients(ctx context.Context, base models.Notification, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification tx: %w", err)
	}
	now := time.Now().UTC()
	for _, recipientID := range recipientIDs {
		row := base
		row.ID = uuid.NewString()
		row.CreatedAt = now
		id := recipientID
		row.RecipientID = &id
		row.IsRead = false
		if _, err := tx.NamedExecContext(ctx, notificationInsert, &row); err != nil {
			tx.Rollback()
			return fmt.Errorf("create recipient notification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification tx: %w", err)
	}
	return nil
}

// List returns notifications for the back office, latest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := "FROM notifications"
	var conditions []string
	var args []interface{}

	if filter.SenderID != "" {
		conditions = append(conditions, fmt.Sprintf("sender_id = $%d", len(args)+1))
		args = append(args, filter.SenderID)
	}
	if filter.TargetType != "" {
		conditions = append(conditions, fmt.Sprintf("target_type = $%d", len(args)+1))
		args = append(args, filter.TargetType)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT id, type, title, message, title_alt, message_alt, target_type, target_id, target_value, recipient_id, is_read, sender_id, course_id, created_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/madrasati/tuition-core-api/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryCreateBroadcastClearsRecipient(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	stray := "stu-1"
	notification := &models.Notification{
		Type:        "ANNOUNCEMENT",
		Title:       "Schedule change",
		Message:     "Saturday session moved to 5pm",
		TargetType:  models.TargetCourse,
		RecipientID: &stray,
		SenderID:    "staff-1",
	}
	err := repo.CreateBroadcast(context.Background(), notification)
	require.NoError(t, err)
	require.Nil(t, notification.RecipientID)
	require.NotEmpty(t, notification.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateForRecipients(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	base := models.Notification{
		Type:       "REMINDER",
		Title:      "Exam tomorrow",
		Message:    "Bring your calculator",
		TargetType: models.TargetExplicit,
		SenderID:   "staff-1",
	}
	err := repo.CreateForRecipients(context.Background(), base, []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateForRecipientsEmpty(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	err := repo.CreateForRecipients(context.Background(), models.Notification{}, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

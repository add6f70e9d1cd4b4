package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
	"github.com/madrasati/tuition-core-api/pkg/jobs"
)

type mockNotificationStore struct {
	broadcasts []*models.Notification
	batches    []struct {
		base       models.Notification
		recipients []string
	}
}

func (m *mockNotificationStore) CreateBroadcast(ctx context.Context, notification *models.Notification) error {
	notification.ID = fmt.Sprintf("ntf-%d", len(m.broadcasts)+1)
	m.broadcasts = append(m.broadcasts, notification)
	return nil
}

func (m *mockNotificationStore) CreateForRecipients(ctx context.Context, base models.Notification, recipientIDs []string) error {
	m.batches = append(m.batches, struct {
		base       models.Notification
		recipients []string
	}{base, recipientIDs})
	return nil
}

func (m *mockNotificationStore) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	return nil, 0, nil
}

type mockResolver struct {
	resolution *models.Resolution
	resolveErr error
	users      []models.User
	matErr     error
}

func (m *mockResolver) Resolve(ctx context.Context, spec models.TargetSpec) (*models.Resolution, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.resolution, nil
}

func (m *mockResolver) Materialize(ctx context.Context, spec models.TargetSpec) ([]models.User, error) {
	if m.matErr != nil {
		return nil, m.matErr
	}
	return m.users, nil
}

type mockQueue struct {
	jobs []jobs.Job
	err  error
}

func (m *mockQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string) (string, error) {
	return "", fmt.Errorf("translation backend down")
}

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text string) (string, error) {
	return "[ar] " + text, nil
}

func newNotificationService(repo *mockNotificationStore, resolver *mockResolver, translator Translator, queue emailEnqueuer, audit *mockAuditWriter) *NotificationService {
	return NewNotificationService(repo, resolver, translator, queue, audit, nil, validator.New(), zap.NewNop())
}

func dispatchFixture(targetType models.NotificationTargetType) DispatchRequest {
	return DispatchRequest{
		Type:    "ANNOUNCEMENT",
		Title:   "Schedule change",
		Message: "Saturday session moved to 5pm",
		Target:  models.TargetSpec{Type: targetType, CourseID: "course-1"},
	}
}

func TestNotificationServiceBroadcastPersistsSingleRow(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolution: &models.Resolution{Broadcast: true}}
	audit := &mockAuditWriter{}
	svc := newNotificationService(repo, resolver, nil, &mockQueue{}, audit)

	result, err := svc.Dispatch(context.Background(), dispatchFixture(models.TargetCourse), "staff-1")
	require.NoError(t, err)
	assert.True(t, result.Broadcast)
	assert.Zero(t, result.RecipientCount)

	require.Len(t, repo.broadcasts, 1)
	assert.Empty(t, repo.batches)
	row := repo.broadcasts[0]
	assert.Nil(t, row.RecipientID)
	assert.Equal(t, models.TargetCourse, row.TargetType)
	require.NotNil(t, row.CourseID)
	assert.Equal(t, "course-1", *row.CourseID)
	assert.Equal(t, "staff-1", row.SenderID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionNotificationDispatch, audit.logs[0].Action)
}

func TestNotificationServiceNotEnrolledPersistsSingleRow(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolution: &models.Resolution{Broadcast: true}}
	svc := newNotificationService(repo, resolver, nil, &mockQueue{}, &mockAuditWriter{})

	req := dispatchFixture(models.TargetNotEnrolled)
	req.Target = models.TargetSpec{Type: models.TargetNotEnrolled}
	result, err := svc.Dispatch(context.Background(), req, "staff-1")
	require.NoError(t, err)
	assert.True(t, result.Broadcast)

	require.Len(t, repo.broadcasts, 1)
	assert.Empty(t, repo.batches)
	row := repo.broadcasts[0]
	assert.Nil(t, row.RecipientID)
	assert.Nil(t, row.TargetID)
	assert.Nil(t, row.CourseID)
	assert.Equal(t, models.TargetNotEnrolled, row.TargetType)
}

func TestNotificationServiceExplicitPersistsPerRecipient(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolution: &models.Resolution{Recipients: []string{"stu-1", "stu-2"}}}
	svc := newNotificationService(repo, resolver, nil, &mockQueue{}, &mockAuditWriter{})

	req := dispatchFixture(models.TargetExplicit)
	req.Target = models.TargetSpec{Type: models.TargetExplicit, UserIDs: []string{"stu-1", "stu-2"}}
	result, err := svc.Dispatch(context.Background(), req, "staff-1")
	require.NoError(t, err)
	assert.False(t, result.Broadcast)
	assert.Equal(t, 2, result.RecipientCount)

	assert.Empty(t, repo.broadcasts)
	require.Len(t, repo.batches, 1)
	assert.Equal(t, []string{"stu-1", "stu-2"}, repo.batches[0].recipients)
}

func TestNotificationServiceEmptyAudienceRejected(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolution: &models.Resolution{Recipients: []string{}}}
	svc := newNotificationService(repo, resolver, nil, &mockQueue{}, &mockAuditWriter{})

	_, err := svc.Dispatch(context.Background(), dispatchFixture(models.TargetExplicit), "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.batches)
}

func TestNotificationServiceTranslationFillsMissingAlt(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolution: &models.Resolution{Broadcast: true}}
	svc := newNotificationService(repo, resolver, upperTranslator{}, &mockQueue{}, &mockAuditWriter{})

	_, err := svc.Dispatch(context.Background(), dispatchFixture(models.TargetCourse), "staff-1")
	require.NoError(t, err)
	require.Len(t, repo.broadcasts, 1)
	assert.Equal(t, "[ar] Schedule change", repo.broadcasts[0].TitleAlt)
	assert.Equal(t, "[ar] Saturday session moved to 5pm", repo.broadcasts[0].MessageAlt)
}

func TestNotificationServiceTranslationFailureFallsBack(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolution: &models.Resolution{Broadcast: true}}
	svc := newNotificationService(repo, resolver, failingTranslator{}, &mockQueue{}, &mockAuditWriter{})

	_, err := svc.Dispatch(context.Background(), dispatchFixture(models.TargetCourse), "staff-1")
	require.NoError(t, err)
	require.Len(t, repo.broadcasts, 1)
	assert.Equal(t, "Schedule change", repo.broadcasts[0].TitleAlt)
}

func TestNotificationServiceProvidedAltKept(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolution: &models.Resolution{Broadcast: true}}
	svc := newNotificationService(repo, resolver, upperTranslator{}, &mockQueue{}, &mockAuditWriter{})

	req := dispatchFixture(models.TargetCourse)
	req.TitleAlt = "already translated"
	_, err := svc.Dispatch(context.Background(), req, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "already translated", repo.broadcasts[0].TitleAlt)
}

func TestNotificationServiceEmailQueued(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{
		resolution: &models.Resolution{Broadcast: true},
		users:      []models.User{*studentFixture("stu-1"), *studentFixture("stu-2")},
	}
	queue := &mockQueue{}
	svc := newNotificationService(repo, resolver, nil, queue, &mockAuditWriter{})

	req := dispatchFixture(models.TargetCourse)
	req.SendEmail = true
	result, err := svc.Dispatch(context.Background(), req, "staff-1")
	require.NoError(t, err)
	assert.True(t, result.EmailQueued)

	require.Len(t, queue.jobs, 1)
	payload, ok := queue.jobs[0].Payload.(EmailJobPayload)
	require.True(t, ok)
	assert.Len(t, payload.Recipients, 2)
	assert.Equal(t, "Schedule change", payload.Content.Subject)
}

func TestNotificationServiceEmailFailureDoesNotFailDispatch(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{
		resolution: &models.Resolution{Broadcast: true},
		users:      []models.User{*studentFixture("stu-1")},
	}
	queue := &mockQueue{err: fmt.Errorf("queue full")}
	svc := newNotificationService(repo, resolver, nil, queue, &mockAuditWriter{})

	req := dispatchFixture(models.TargetCourse)
	req.SendEmail = true
	result, err := svc.Dispatch(context.Background(), req, "staff-1")
	require.NoError(t, err)
	assert.False(t, result.EmailQueued)
	require.Len(t, repo.broadcasts, 1)
}

func TestNotificationServiceMaterializeFailureSkipsEmail(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{
		resolution: &models.Resolution{Broadcast: true},
		matErr:     fmt.Errorf("roster unavailable"),
	}
	svc := newNotificationService(repo, resolver, nil, &mockQueue{}, &mockAuditWriter{})

	req := dispatchFixture(models.TargetCourse)
	req.SendEmail = true
	result, err := svc.Dispatch(context.Background(), req, "staff-1")
	require.NoError(t, err)
	assert.False(t, result.EmailQueued)
}

func TestNotificationServiceResolveErrorAbortsDispatch(t *testing.T) {
	repo := &mockNotificationStore{}
	resolver := &mockResolver{resolveErr: appErrors.Clone(appErrors.ErrResolutionIncomplete, "")}
	svc := newNotificationService(repo, resolver, nil, &mockQueue{}, &mockAuditWriter{})

	_, err := svc.Dispatch(context.Background(), dispatchFixture(models.TargetCourse), "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrResolutionIncomplete.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.broadcasts)
}

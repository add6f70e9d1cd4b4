package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	"github.com/madrasati/tuition-core-api/internal/repository"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
)

type mockEnrollmentStore struct {
	enrollments map[string]models.Enrollment
	existing    map[string]bool
	created     []*models.Enrollment
	transitions []repository.TransitionParams
}

func (m *mockEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentStore) ExistsForScope(ctx context.Context, userID string, scope models.EnrollmentScope, scopeID string) (bool, error) {
	return m.existing[userID+":"+string(scope)+":"+scopeID], nil
}

func (m *mockEnrollmentStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = append(m.created, enrollment)
	return nil
}

func (m *mockEnrollmentStore) UpdateStatusGuarded(ctx context.Context, params repository.TransitionParams) error {
	m.transitions = append(m.transitions, params)
	e, ok := m.enrollments[params.ID]
	if !ok || e.Status != params.Expected {
		return sql.ErrNoRows
	}
	e.Status = params.Next
	if params.ActivatedAt != nil {
		e.ActivatedAt = params.ActivatedAt
		e.ActivatedBy = params.ActivatedBy
	}
	if params.SuspendedAt != nil {
		e.SuspendedAt = params.SuspendedAt
		e.SuspendedBy = params.SuspendedBy
		e.SuspendedReason = params.SuspendedReason
	}
	if params.ClearSuspension {
		e.SuspendedAt = nil
		e.SuspendedBy = nil
		e.SuspendedReason = nil
	}
	if params.ExpiredAt != nil {
		e.ExpiredAt = params.ExpiredAt
	}
	if params.ClearExpiry {
		e.ExpiredAt = nil
	}
	m.enrollments[params.ID] = e
	return nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses  map[string]*models.Course
	chapters map[string]*models.Chapter
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseReader) FindChapterByID(ctx context.Context, id string) (*models.Chapter, error) {
	if c, ok := m.chapters[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockFreezer struct {
	err    error
	frozen []string
}

func (m *mockFreezer) Freeze(ctx context.Context, enrollment *models.Enrollment, actorID string) (*models.ActivitySummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.frozen = append(m.frozen, enrollment.ID)
	return &models.ActivitySummary{EnrollmentID: enrollment.ID, FrozenBy: actorID}, nil
}

type mockAuditWriter struct {
	logs []*models.AuditLog
}

func (m *mockAuditWriter) Create(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type mockRosterInvalidator struct {
	patterns []string
}

func (m *mockRosterInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func studentFixture(id string) *models.User {
	return &models.User{ID: id, Role: models.RoleStudent, Active: true, AcademicYear: "grade-11", LanguageTrack: "AR", Email: id + "@example.com", FullName: "Student " + id}
}

func newEnrollmentService(repo *mockEnrollmentStore, users *mockUserReader, courses *mockCourseReader, freezer *mockFreezer, audit *mockAuditWriter) *EnrollmentService {
	return NewEnrollmentService(repo, users, courses, freezer, audit, &mockRosterInvalidator{}, validator.New(), zap.NewNop())
}

func TestEnrollmentServiceGrantCreatesPending(t *testing.T) {
	repo := &mockEnrollmentStore{}
	users := &mockUserReader{users: map[string]*models.User{"stu-1": studentFixture("stu-1")}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", PriceCents: 5000}}}
	audit := &mockAuditWriter{}
	svc := newEnrollmentService(repo, users, courses, &mockFreezer{}, audit)

	enrollment, err := svc.Grant(context.Background(), GrantEnrollmentRequest{UserID: "stu-1", Scope: models.EnrollmentScopeCourse, ScopeID: "course-1"}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.Equal(t, "course-1", enrollment.CourseID)
	assert.Nil(t, enrollment.ActivatedAt)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionEnrollmentGrant, audit.logs[0].Action)
}

func TestEnrollmentServiceGrantChapterResolvesCourse(t *testing.T) {
	repo := &mockEnrollmentStore{}
	users := &mockUserReader{users: map[string]*models.User{"stu-1": studentFixture("stu-1")}}
	courses := &mockCourseReader{chapters: map[string]*models.Chapter{"ch-1": {ID: "ch-1", CourseID: "course-9"}}}
	svc := newEnrollmentService(repo, users, courses, &mockFreezer{}, &mockAuditWriter{})

	enrollment, err := svc.Grant(context.Background(), GrantEnrollmentRequest{UserID: "stu-1", Scope: models.EnrollmentScopeChapter, ScopeID: "ch-1"}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "course-9", enrollment.CourseID)
	assert.Equal(t, models.EnrollmentScopeChapter, enrollment.Scope)
}

func TestEnrollmentServiceGrantRejectsDuplicate(t *testing.T) {
	repo := &mockEnrollmentStore{existing: map[string]bool{"stu-1:COURSE:course-1": true}}
	users := &mockUserReader{users: map[string]*models.User{"stu-1": studentFixture("stu-1")}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1"}}}
	svc := newEnrollmentService(repo, users, courses, &mockFreezer{}, &mockAuditWriter{})

	_, err := svc.Grant(context.Background(), GrantEnrollmentRequest{UserID: "stu-1", Scope: models.EnrollmentScopeCourse, ScopeID: "course-1"}, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestEnrollmentServiceSelfEnrollFreeCourse(t *testing.T) {
	repo := &mockEnrollmentStore{}
	users := &mockUserReader{users: map[string]*models.User{"stu-1": studentFixture("stu-1")}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", PriceCents: 0}}}
	svc := newEnrollmentService(repo, users, courses, &mockFreezer{}, &mockAuditWriter{})

	enrollment, err := svc.SelfEnroll(context.Background(), SelfEnrollRequest{Scope: models.EnrollmentScopeCourse, ScopeID: "course-1"}, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.ActivatedBy)
	assert.Equal(t, "stu-1", *enrollment.ActivatedBy)
}

func TestEnrollmentServiceSelfEnrollPaidCourseForbidden(t *testing.T) {
	repo := &mockEnrollmentStore{}
	users := &mockUserReader{users: map[string]*models.User{"stu-1": studentFixture("stu-1")}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", PriceCents: 9900}}}
	svc := newEnrollmentService(repo, users, courses, &mockFreezer{}, &mockAuditWriter{})

	_, err := svc.SelfEnroll(context.Background(), SelfEnrollRequest{Scope: models.EnrollmentScopeCourse, ScopeID: "course-1"}, "stu-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestEnrollmentServiceBulkGrantCollectsSkips(t *testing.T) {
	repo := &mockEnrollmentStore{existing: map[string]bool{"stu-2:COURSE:course-1": true}}
	users := &mockUserReader{users: map[string]*models.User{
		"stu-1": studentFixture("stu-1"),
		"stu-2": studentFixture("stu-2"),
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1"}}}
	svc := newEnrollmentService(repo, users, courses, &mockFreezer{}, &mockAuditWriter{})

	result, err := svc.BulkGrant(context.Background(), BulkGrantRequest{
		UserIDs: []string{"stu-1", "stu-2", "stu-missing"},
		Scope:   models.EnrollmentScopeCourse,
		ScopeID: "course-1",
	}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, result.Granted)
	require.Len(t, result.Skipped, 2)
}

func TestEnrollmentServiceActivatePending(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", UserID: "stu-1", Status: models.EnrollmentStatusPending},
	}}
	audit := &mockAuditWriter{}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, audit)

	enrollment, err := svc.Activate(context.Background(), "enr-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.ActivatedBy)
	assert.Equal(t, "staff-1", *enrollment.ActivatedBy)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionEnrollmentActivate, audit.logs[0].Action)
}

func TestEnrollmentServiceActivateActiveIsNoOp(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusActive},
	}}
	audit := &mockAuditWriter{}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, audit)

	enrollment, err := svc.Activate(context.Background(), "enr-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Empty(t, repo.transitions)
	assert.Empty(t, audit.logs)
}

func TestEnrollmentServiceActivateSuspendedClearsSuspension(t *testing.T) {
	now := time.Now().UTC()
	reason := "late payment"
	staff := "staff-0"
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusSuspended, SuspendedAt: &now, SuspendedBy: &staff, SuspendedReason: &reason},
	}}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, &mockAuditWriter{})

	enrollment, err := svc.Activate(context.Background(), "enr-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Nil(t, enrollment.SuspendedAt)
	assert.Nil(t, enrollment.SuspendedBy)
	assert.Nil(t, enrollment.SuspendedReason)
}

func TestEnrollmentServiceActivateExpiredRejected(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusExpired},
	}}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, &mockAuditWriter{})

	_, err := svc.Activate(context.Background(), "enr-1", "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceSuspendRecordsReasonAndActor(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusActive},
	}}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, &mockAuditWriter{})

	enrollment, err := svc.Suspend(context.Background(), "enr-1", SuspendEnrollmentRequest{Reason: "payment overdue"}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusSuspended, enrollment.Status)
	require.NotNil(t, enrollment.SuspendedReason)
	assert.Equal(t, "payment overdue", *enrollment.SuspendedReason)
	require.NotNil(t, enrollment.SuspendedBy)
	assert.Equal(t, "staff-1", *enrollment.SuspendedBy)
	assert.NotNil(t, enrollment.SuspendedAt)
}

func TestEnrollmentServiceSuspendRequiresReason(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusActive},
	}}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, &mockAuditWriter{})

	_, err := svc.Suspend(context.Background(), "enr-1", SuspendEnrollmentRequest{}, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceSuspendPendingRejected(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusPending},
	}}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, &mockAuditWriter{})

	_, err := svc.Suspend(context.Background(), "enr-1", SuspendEnrollmentRequest{Reason: "x"}, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceTerminateFreezesBeforeWrite(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusActive},
	}}
	freezer := &mockFreezer{}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, freezer, &mockAuditWriter{})

	enrollment, err := svc.Terminate(context.Background(), "enr-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusExpired, enrollment.Status)
	assert.NotNil(t, enrollment.ExpiredAt)
	assert.Equal(t, []string{"enr-1"}, freezer.frozen)
}

func TestEnrollmentServiceTerminateAbortsOnFreezeFailure(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusActive},
	}}
	freezer := &mockFreezer{err: appErrors.Clone(appErrors.ErrFreezeFailed, "")}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, freezer, &mockAuditWriter{})

	_, err := svc.Terminate(context.Background(), "enr-1", "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFreezeFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.transitions)
	assert.Equal(t, models.EnrollmentStatusActive, repo.enrollments["enr-1"].Status)
}

func TestEnrollmentServiceReactivateExpired(t *testing.T) {
	expiredAt := time.Now().UTC().Add(-24 * time.Hour)
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusExpired, ExpiredAt: &expiredAt},
	}}
	audit := &mockAuditWriter{}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, audit)

	enrollment, err := svc.Reactivate(context.Background(), "enr-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Nil(t, enrollment.ExpiredAt)
	assert.Nil(t, repo.enrollments["enr-1"].ExpiredAt)
	require.Len(t, repo.transitions, 1)
	assert.True(t, repo.transitions[0].ClearExpiry)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionEnrollmentReactivate, audit.logs[0].Action)
}

func TestEnrollmentServiceReactivateActiveRejected(t *testing.T) {
	repo := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusActive},
	}}
	svc := newEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, &mockAuditWriter{})

	_, err := svc.Reactivate(context.Background(), "enr-1", "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceTransitionConflictSurfaced(t *testing.T) {
	repo := &conflictingEnrollmentStore{mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusPending},
	}}}
	svc := NewEnrollmentService(repo, &mockUserReader{}, &mockCourseReader{}, &mockFreezer{}, &mockAuditWriter{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Activate(context.Background(), "enr-1", "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

// conflictingEnrollmentStore simulates a concurrent writer snatching the row
// between read and guarded update.
type conflictingEnrollmentStore struct {
	mockEnrollmentStore
}

func (m *conflictingEnrollmentStore) UpdateStatusGuarded(ctx context.Context, params repository.TransitionParams) error {
	return sql.ErrNoRows
}

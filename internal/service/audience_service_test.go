package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
)

type mockRosterUsers struct {
	users    map[string]*models.User
	enrolled map[string]bool
}

func (m *mockRosterUsers) ListByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var users []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (m *mockRosterUsers) ListStudents(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	var users []models.User
	for _, u := range m.users {
		if u.Role != models.RoleStudent || !u.Active {
			continue
		}
		if filter.AcademicYear != "" && u.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.AttendanceMode != "" && u.AttendanceMode != filter.AttendanceMode {
			continue
		}
		users = append(users, *u)
	}
	return users, nil
}

func (m *mockRosterUsers) ListStudentIDsNotEnrolled(ctx context.Context) ([]string, error) {
	var ids []string
	for id, u := range m.users {
		if u.Role != models.RoleStudent || !u.Active || m.enrolled[id] {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type mockRosterEnrollments struct {
	byCourse   map[string][]string
	byChapter  map[string][]string
	candidates map[string][]string
	courseHits int
}

func (m *mockRosterEnrollments) ListActiveStudentIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	m.courseHits++
	return m.byCourse[courseID], nil
}

func (m *mockRosterEnrollments) ListActiveStudentIDsByChapter(ctx context.Context, chapterID, courseID string) ([]string, error) {
	return m.byChapter[chapterID], nil
}

func (m *mockRosterEnrollments) ListCandidateStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	return m.candidates[courseID], nil
}

type mockExamReader struct {
	exams    map[string]*models.Exam
	attempts map[string][]models.ExamAttempt
}

func (m *mockExamReader) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	if e, ok := m.exams[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExamReader) ListCompletedAttempts(ctx context.Context, examID string) ([]models.ExamAttempt, error) {
	return m.attempts[examID], nil
}

type memoryCache struct {
	values map[string][]string
	hits   int
	sets   int
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if values, ok := m.values[key]; ok {
		m.hits++
		out := dest.(*[]string)
		*out = values
		return nil
	}
	return appErrors.ErrCacheMiss
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]string)
	}
	m.values[key] = value.([]string)
	m.sets++
	return nil
}

func audienceFixtures() (*mockRosterUsers, *mockRosterEnrollments, *mockCourseReader, *mockExamReader) {
	users := &mockRosterUsers{users: map[string]*models.User{
		"stu-1":  studentFixture("stu-1"),
		"stu-2":  studentFixture("stu-2"),
		"stu-3":  studentFixture("stu-3"),
		"asst-1": {ID: "asst-1", Role: models.RoleAssistant, Active: true, FullName: "Assistant", Email: "asst@example.com"},
	}}
	enrollments := &mockRosterEnrollments{
		byCourse:   map[string][]string{"course-1": {"stu-1", "stu-2"}},
		byChapter:  map[string][]string{"ch-1": {"stu-1"}},
		candidates: map[string][]string{"course-1": {"stu-1", "stu-2", "stu-3"}},
	}
	courses := &mockCourseReader{
		courses:  map[string]*models.Course{"course-1": {ID: "course-1"}},
		chapters: map[string]*models.Chapter{"ch-1": {ID: "ch-1", CourseID: "course-1"}},
	}
	exams := &mockExamReader{
		exams: map[string]*models.Exam{"exam-1": {ID: "exam-1", CourseID: "course-1", MaxScore: 50}},
		attempts: map[string][]models.ExamAttempt{"exam-1": {
			{StudentID: "stu-1", Score: 20, Completed: true},
			{StudentID: "stu-1", Score: 35, Completed: true},
			{StudentID: "stu-2", Score: 40, Completed: true},
		}},
	}
	return users, enrollments, courses, exams
}

func newAudienceService(users *mockRosterUsers, enrollments *mockRosterEnrollments, courses *mockCourseReader, exams *mockExamReader, cache rosterCache) *AudienceService {
	return NewAudienceService(users, enrollments, courses, exams, cache, time.Minute, zap.NewNop())
}

func TestAudienceServiceBroadcastVariants(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	for _, spec := range []models.TargetSpec{
		{Type: models.TargetAll},
		{Type: models.TargetGrade, Grade: "grade-11"},
		{Type: models.TargetAttendanceMode, AttendanceMode: models.AttendanceModeCenter},
		{Type: models.TargetCourse, CourseID: "course-1"},
		{Type: models.TargetLesson, LessonID: "ch-1"},
	} {
		resolution, err := svc.Resolve(context.Background(), spec)
		require.NoError(t, err, "spec %s", spec.Type)
		assert.True(t, resolution.Broadcast, "spec %s", spec.Type)
		assert.Empty(t, resolution.Recipients, "spec %s", spec.Type)
	}
}

func TestAudienceServiceExplicitDropsStaffAndDuplicates(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:    models.TargetExplicit,
		UserIDs: []string{"stu-2", "asst-1", "stu-1", "stu-2", "ghost"},
	})
	require.NoError(t, err)
	assert.False(t, resolution.Broadcast)
	assert.Equal(t, []string{"stu-1", "stu-2"}, resolution.Recipients)
}

func TestAudienceServiceNotEnrolledIsBroadcast(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{Type: models.TargetNotEnrolled})
	require.NoError(t, err)
	assert.True(t, resolution.Broadcast)
	assert.Empty(t, resolution.Recipients)
}

func TestAudienceServiceNotEnrolledSpansAllCourses(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	// stu-1 and stu-2 hold enrollment rows on different courses; stu-3 holds none
	users.enrolled = map[string]bool{"stu-1": true, "stu-2": true}
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	audience, err := svc.Materialize(context.Background(), models.TargetSpec{Type: models.TargetNotEnrolled})
	require.NoError(t, err)
	require.Len(t, audience, 1)
	assert.Equal(t, "stu-3", audience[0].ID)
}

func TestAudienceServiceNotEnrolledEmptyWhenAllEnrolled(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	users.enrolled = map[string]bool{"stu-1": true, "stu-2": true, "stu-3": true}
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	audience, err := svc.Materialize(context.Background(), models.TargetSpec{Type: models.TargetNotEnrolled})
	require.NoError(t, err)
	assert.Empty(t, audience)
}

func TestAudienceServiceNotTaken(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	// stu-3 is enrolled on the course but has no completed attempt
	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:   models.TargetCustomFilter,
		Filter: &models.CustomFilter{ExamID: "exam-1", Condition: models.ConditionNotTaken},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-3"}, resolution.Recipients)
}

func TestAudienceServiceBelowScoreIsStrict(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	// best percentages: stu-1 = 70 (35/50), stu-2 = 80 (40/50)
	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:   models.TargetCustomFilter,
		Filter: &models.CustomFilter{ExamID: "exam-1", Condition: models.ConditionBelowScore, Threshold: 80},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, resolution.Recipients)
}

func TestAudienceServiceAboveScoreIsInclusive(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:   models.TargetCustomFilter,
		Filter: &models.CustomFilter{ExamID: "exam-1", Condition: models.ConditionAboveScore, Threshold: 80},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-2"}, resolution.Recipients)
}

func TestAudienceServiceBestAttemptWins(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	// stu-1's attempts are 40% and 70%; the 70% best keeps them above 50
	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:   models.TargetCustomFilter,
		Filter: &models.CustomFilter{ExamID: "exam-1", Condition: models.ConditionAboveScore, Threshold: 50},
	})
	require.NoError(t, err)
	assert.Contains(t, resolution.Recipients, "stu-1")
}

func TestAudienceServiceUnknownExam(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	_, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:   models.TargetCustomFilter,
		Filter: &models.CustomFilter{ExamID: "exam-missing", Condition: models.ConditionNotTaken},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrResolutionIncomplete.Code, appErrors.FromError(err).Code)
}

func TestAudienceServiceUnknownCourse(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	_, err := svc.Resolve(context.Background(), models.TargetSpec{Type: models.TargetCourse, CourseID: "course-missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrResolutionIncomplete.Code, appErrors.FromError(err).Code)
}

func TestAudienceServiceSearchFiltersMaterializedAudience(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	users.users["stu-2"].FullName = "Mariam Hassan"
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:    models.TargetExplicit,
		UserIDs: []string{"stu-1", "stu-2"},
		Search:  "mariam",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-2"}, resolution.Recipients)
}

func TestAudienceServiceSearchMatchesPhone(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	users.users["stu-1"].Phone = "+20-100-555-0199"
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	resolution, err := svc.Resolve(context.Background(), models.TargetSpec{
		Type:    models.TargetExplicit,
		UserIDs: []string{"stu-1", "stu-2"},
		Search:  "555-0199",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, resolution.Recipients)
}

func TestAudienceServiceCourseRosterUsesCache(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	cache := &memoryCache{}
	svc := newAudienceService(users, enrollments, courses, exams, cache)

	spec := models.TargetSpec{Type: models.TargetCourse, CourseID: "course-1"}
	_, err := svc.Materialize(context.Background(), spec)
	require.NoError(t, err)
	_, err = svc.Materialize(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, 1, enrollments.courseHits)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.sets)
}

func TestAudienceServiceValidation(t *testing.T) {
	users, enrollments, courses, exams := audienceFixtures()
	svc := newAudienceService(users, enrollments, courses, exams, nil)

	cases := []models.TargetSpec{
		{Type: "BOGUS"},
		{Type: models.TargetGrade},
		{Type: models.TargetCourse},
		{Type: models.TargetExplicit},
		{Type: models.TargetCustomFilter},
		{Type: models.TargetCustomFilter, Filter: &models.CustomFilter{ExamID: "exam-1", Condition: "SOMETIMES"}},
	}
	for _, spec := range cases {
		_, err := svc.Resolve(context.Background(), spec)
		require.Error(t, err, "spec %+v", spec)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
)

type rosterUserReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListStudents(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	ListStudentIDsNotEnrolled(ctx context.Context) ([]string, error)
}

type rosterEnrollmentReader interface {
	ListActiveStudentIDsByCourse(ctx context.Context, courseID string) ([]string, error)
	ListActiveStudentIDsByChapter(ctx context.Context, chapterID, courseID string) ([]string, error)
	ListCandidateStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type examReader interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	ListCompletedAttempts(ctx context.Context, examID string) ([]models.ExamAttempt, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AudienceService resolves notification target specs into audiences. The
// resolution itself never writes anything; reads go through a short-lived
// roster cache so repeated previews stay cheap.
type AudienceService struct {
	users       rosterUserReader
	enrollments rosterEnrollmentReader
	courses     courseReader
	exams       examReader
	cache       rosterCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewAudienceService constructs AudienceService.
func NewAudienceService(users rosterUserReader, enrollments rosterEnrollmentReader, courses courseReader, exams examReader, cache rosterCache, cacheTTL time.Duration, logger *zap.Logger) *AudienceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &AudienceService{users: users, enrollments: enrollments, courses: courses, exams: exams, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Resolve turns a target spec into a resolution. Scope-matched variants stay
// broadcast; recipient-list variants come back with a deduplicated,
// staff-free, deterministically ordered ID list.
func (s *AudienceService) Resolve(ctx context.Context, spec models.TargetSpec) (*models.Resolution, error) {
	if err := s.validateSpec(spec); err != nil {
		return nil, err
	}
	switch spec.Type {
	case models.TargetAll, models.TargetGrade, models.TargetAttendanceMode, models.TargetNotEnrolled:
		return &models.Resolution{Broadcast: true}, nil
	case models.TargetCourse:
		if _, err := s.findCourse(ctx, spec.CourseID); err != nil {
			return nil, err
		}
		return &models.Resolution{Broadcast: true}, nil
	case models.TargetLesson:
		if _, err := s.findChapter(ctx, spec.LessonID); err != nil {
			return nil, err
		}
		return &models.Resolution{Broadcast: true}, nil
	}

	users, err := s.Materialize(ctx, spec)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	return &models.Resolution{Broadcast: false, Recipients: ids}, nil
}

// Materialize computes the concrete student set for any variant. Broadcast
// dispatches use this for email delivery and previews; the notification rows
// themselves stay scope-matched.
func (s *AudienceService) Materialize(ctx context.Context, spec models.TargetSpec) ([]models.User, error) {
	if err := s.validateSpec(spec); err != nil {
		return nil, err
	}

	var (
		users []models.User
		err   error
	)
	switch spec.Type {
	case models.TargetAll:
		users, err = s.users.ListStudents(ctx, models.UserFilter{})
	case models.TargetGrade:
		users, err = s.users.ListStudents(ctx, models.UserFilter{AcademicYear: spec.Grade})
	case models.TargetAttendanceMode:
		users, err = s.users.ListStudents(ctx, models.UserFilter{AttendanceMode: spec.AttendanceMode})
	case models.TargetCourse:
		users, err = s.courseAudience(ctx, spec.CourseID)
	case models.TargetLesson:
		users, err = s.lessonAudience(ctx, spec.LessonID)
	case models.TargetExplicit:
		users, err = s.users.ListByIDs(ctx, spec.UserIDs)
	case models.TargetNotEnrolled:
		users, err = s.notEnrolledAudience(ctx)
	case models.TargetCustomFilter:
		users, err = s.filteredAudience(ctx, spec.Filter)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported target type")
	}
	if err != nil {
		return nil, err
	}
	return finalizeAudience(users, spec.Search), nil
}

func (s *AudienceService) courseAudience(ctx context.Context, courseID string) ([]models.User, error) {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	ids, err := s.courseRoster(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, ids)
}

func (s *AudienceService) lessonAudience(ctx context.Context, chapterID string) ([]models.User, error) {
	chapter, err := s.findChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	ids, err := s.enrollments.ListActiveStudentIDsByChapter(ctx, chapter.ID, chapter.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chapter roster")
	}
	return s.hydrate(ctx, ids)
}

// notEnrolledAudience is the set difference between all student accounts and
// the students present in any enrollment row, whatever its status. Every
// student holding at least one row yields the empty set.
func (s *AudienceService) notEnrolledAudience(ctx context.Context) ([]models.User, error) {
	ids, err := s.users.ListStudentIDsNotEnrolled(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load non-enrolled students")
	}
	return s.hydrate(ctx, ids)
}

// filteredAudience selects students by exam performance. Candidates are the
// students holding any enrollment row on the exam's course.
func (s *AudienceService) filteredAudience(ctx context.Context, filter *models.CustomFilter) ([]models.User, error) {
	exam, err := s.exams.FindByID(ctx, filter.ExamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrResolutionIncomplete, "exam referenced by filter does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	candidates, err := s.enrollments.ListCandidateStudentIDs(ctx, exam.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidate students")
	}
	attempts, err := s.exams.ListCompletedAttempts(ctx, filter.ExamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam attempts")
	}
	best := bestPercent(attempts, exam.MaxScore)

	var selected []string
	switch filter.Condition {
	case models.ConditionNotTaken:
		for _, id := range candidates {
			if _, taken := best[id]; !taken {
				selected = append(selected, id)
			}
		}
	case models.ConditionBelowScore:
		for _, id := range candidates {
			if percent, taken := best[id]; taken && percent < filter.Threshold {
				selected = append(selected, id)
			}
		}
	case models.ConditionAboveScore:
		for _, id := range candidates {
			if percent, taken := best[id]; taken && percent >= filter.Threshold {
				selected = append(selected, id)
			}
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported filter condition")
	}
	return s.hydrate(ctx, selected)
}

// courseRoster returns the active student IDs of a course, via the cache
// when possible. Cache trouble degrades to a direct read.
func (s *AudienceService) courseRoster(ctx context.Context, courseID string) ([]string, error) {
	key := "audience:roster:course:" + courseID
	if s.cache != nil {
		var cached []string
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("roster cache read failed", zap.String("key", key), zap.Error(err))
		}
	}
	ids, err := s.enrollments.ListActiveStudentIDsByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, ids, s.cacheTTL); err != nil {
			s.logger.Warn("roster cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return ids, nil
}

func (s *AudienceService) hydrate(ctx context.Context, ids []string) ([]models.User, error) {
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audience users")
	}
	return users, nil
}

func (s *AudienceService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrResolutionIncomplete, "target course does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *AudienceService) findChapter(ctx context.Context, id string) (*models.Chapter, error) {
	chapter, err := s.courses.FindChapterByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrResolutionIncomplete, "target lesson does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chapter")
	}
	return chapter, nil
}

func (s *AudienceService) validateSpec(spec models.TargetSpec) error {
	switch spec.Type {
	case models.TargetAll:
	case models.TargetGrade:
		if spec.Grade == "" {
			return appErrors.Clone(appErrors.ErrValidation, "grade is required for GRADE targets")
		}
	case models.TargetAttendanceMode:
		if spec.AttendanceMode != models.AttendanceModeCenter && spec.AttendanceMode != models.AttendanceModeOnline {
			return appErrors.Clone(appErrors.ErrValidation, "attendance mode must be CENTER or ONLINE")
		}
	case models.TargetNotEnrolled:
	case models.TargetCourse:
		if spec.CourseID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "course id is required for COURSE targets")
		}
	case models.TargetLesson:
		if spec.LessonID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "lesson id is required for LESSON targets")
		}
	case models.TargetExplicit:
		if len(spec.UserIDs) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "user ids are required for EXPLICIT targets")
		}
	case models.TargetCustomFilter:
		if spec.Filter == nil || spec.Filter.ExamID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "filter with exam id is required for CUSTOM_FILTER targets")
		}
		switch spec.Filter.Condition {
		case models.ConditionNotTaken, models.ConditionBelowScore, models.ConditionAboveScore:
		default:
			return appErrors.Clone(appErrors.ErrValidation, "unsupported filter condition")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported target type: %s", spec.Type))
	}
	return nil
}

// bestPercent maps each student to the highest score percentage among their
// completed attempts.
func bestPercent(attempts []models.ExamAttempt, maxScore float64) map[string]float64 {
	best := make(map[string]float64, len(attempts))
	for _, attempt := range attempts {
		if !attempt.Completed || maxScore <= 0 {
			continue
		}
		percent := attempt.Score / maxScore * 100
		if current, ok := best[attempt.StudentID]; !ok || percent > current {
			best[attempt.StudentID] = percent
		}
	}
	return best
}

// finalizeAudience drops staff and inactive accounts, applies the free-text
// search, deduplicates and orders deterministically.
func finalizeAudience(users []models.User, search string) []models.User {
	needle := strings.ToLower(strings.TrimSpace(search))
	seen := make(map[string]bool, len(users))
	result := make([]models.User, 0, len(users))
	for _, user := range users {
		if user.Role.IsStaff() || !user.Active || seen[user.ID] {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(user.FullName), needle) &&
			!strings.Contains(strings.ToLower(user.Email), needle) &&
			!strings.Contains(strings.ToLower(user.Phone), needle) {
			continue
		}
		seen[user.ID] = true
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

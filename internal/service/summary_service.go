package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
)

// SummaryFreezer captures a point-in-time activity snapshot for an
// enrollment. Termination calls this before any status write.
type SummaryFreezer interface {
	Freeze(ctx context.Context, enrollment *models.Enrollment, actorID string) (*models.ActivitySummary, error)
}

type summaryStore interface {
	Create(ctx context.Context, summary *models.ActivitySummary) error
	FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.ActivitySummary, error)
	AttendanceRate(ctx context.Context, courseID, studentID string) (float64, error)
}

type attemptReader interface {
	ListCompletedAttemptsByStudent(ctx context.Context, courseID, studentID string) ([]models.ExamAttempt, error)
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type membershipReader interface {
	FindActiveMembership(ctx context.Context, studentID string) (*models.GroupMembership, error)
}

// SummaryService builds and stores frozen activity summaries.
type SummaryService struct {
	repo        summaryStore
	exams       attemptReader
	memberships membershipReader
	logger      *zap.Logger
}

// NewSummaryService constructs the service.
func NewSummaryService(repo summaryStore, exams attemptReader, memberships membershipReader, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{repo: repo, exams: exams, memberships: memberships, logger: logger}
}

// Freeze computes and persists the snapshot. Any failure here must abort the
// caller's termination, so errors are returned rather than absorbed.
func (s *SummaryService) Freeze(ctx context.Context, enrollment *models.Enrollment, actorID string) (*models.ActivitySummary, error) {
	attendance, err := s.repo.AttendanceRate(ctx, enrollment.CourseID, enrollment.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFreezeFailed.Code, appErrors.ErrFreezeFailed.Status, "failed to compute attendance rate")
	}

	attempts, err := s.exams.ListCompletedAttemptsByStudent(ctx, enrollment.CourseID, enrollment.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFreezeFailed.Code, appErrors.ErrFreezeFailed.Status, "failed to load exam attempts")
	}
	examAverage, err := s.averagePercent(ctx, attempts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFreezeFailed.Code, appErrors.ErrFreezeFailed.Status, "failed to compute exam average")
	}

	var groupID *string
	membership, err := s.memberships.FindActiveMembership(ctx, enrollment.UserID)
	switch {
	case err == nil:
		groupID = &membership.GroupID
	case errors.Is(err, sql.ErrNoRows):
		// student currently groupless, snapshot records that
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrFreezeFailed.Code, appErrors.ErrFreezeFailed.Status, "failed to load group membership")
	}

	summary := &models.ActivitySummary{
		EnrollmentID:   enrollment.ID,
		UserID:         enrollment.UserID,
		CourseID:       enrollment.CourseID,
		Progress:       enrollment.Progress,
		AttendanceRate: attendance,
		ExamAverage:    examAverage,
		GroupID:        groupID,
		FrozenBy:       actorID,
	}
	if err := s.repo.Create(ctx, summary); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFreezeFailed.Code, appErrors.ErrFreezeFailed.Status, "failed to persist activity summary")
	}
	return summary, nil
}

// Get returns the latest frozen summary for an enrollment.
func (s *SummaryService) Get(ctx context.Context, enrollmentID string) (*models.ActivitySummary, error) {
	summary, err := s.repo.FindByEnrollmentID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no frozen summary for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity summary")
	}
	return summary, nil
}

// averagePercent computes the mean of the best score percentage per exam
// across all completed attempts.
func (s *SummaryService) averagePercent(ctx context.Context, attempts []models.ExamAttempt) (float64, error) {
	if len(attempts) == 0 {
		return 0, nil
	}
	best := make(map[string]float64)
	maxScores := make(map[string]float64)
	for _, attempt := range attempts {
		maxScore, ok := maxScores[attempt.ExamID]
		if !ok {
			exam, err := s.exams.FindByID(ctx, attempt.ExamID)
			if err != nil {
				return 0, err
			}
			maxScore = exam.MaxScore
			maxScores[attempt.ExamID] = maxScore
		}
		if maxScore <= 0 {
			continue
		}
		percent := attempt.Score / maxScore * 100
		if percent > best[attempt.ExamID] {
			best[attempt.ExamID] = percent
		}
	}
	if len(best) == 0 {
		return 0, nil
	}
	var sum float64
	for _, percent := range best {
		sum += percent
	}
	return sum / float64(len(best)), nil
}

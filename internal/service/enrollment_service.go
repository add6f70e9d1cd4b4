package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	"github.com/madrasati/tuition-core-api/internal/repository"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
)

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsForScope(ctx context.Context, userID string, scope models.EnrollmentScope, scopeID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatusGuarded(ctx context.Context, params repository.TransitionParams) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindChapterByID(ctx context.Context, id string) (*models.Chapter, error)
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type rosterInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// GrantEnrollmentRequest describes a staff-initiated enrollment grant.
type GrantEnrollmentRequest struct {
	UserID  string                 `json:"user_id" validate:"required"`
	Scope   models.EnrollmentScope `json:"scope" validate:"required,oneof=COURSE CHAPTER"`
	ScopeID string                 `json:"scope_id" validate:"required"`
}

// SelfEnrollRequest describes a student enrolling themselves on free content.
type SelfEnrollRequest struct {
	Scope   models.EnrollmentScope `json:"scope" validate:"required,oneof=COURSE CHAPTER"`
	ScopeID string                 `json:"scope_id" validate:"required"`
}

// BulkGrantRequest grants the same scope to many students at once.
type BulkGrantRequest struct {
	UserIDs []string               `json:"user_ids" validate:"required,min=1,dive,required"`
	Scope   models.EnrollmentScope `json:"scope" validate:"required,oneof=COURSE CHAPTER"`
	ScopeID string                 `json:"scope_id" validate:"required"`
}

// BulkGrantResult reports per-student outcomes of a bulk grant.
type BulkGrantResult struct {
	Granted []string            `json:"granted"`
	Skipped []BulkGrantSkipped  `json:"skipped"`
}

// BulkGrantSkipped explains why one student was not granted.
type BulkGrantSkipped struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// SuspendEnrollmentRequest carries the mandatory suspension reason.
type SuspendEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// EnrollmentService orchestrates the enrollment lifecycle.
type EnrollmentService struct {
	repo      enrollmentStore
	users     userReader
	courses   courseReader
	freezer   SummaryFreezer
	audit     auditWriter
	roster    rosterInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, users userReader, courses courseReader, freezer SummaryFreezer, audit auditWriter, roster rosterInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, users: users, courses: courses, freezer: freezer, audit: audit, roster: roster, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns a single enrollment with context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Grant creates a pending enrollment for a student. The row stays PENDING
// until a staff member activates it.
func (s *EnrollmentService) Grant(ctx context.Context, req GrantEnrollmentRequest, actorID string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}
	enrollment, err := s.prepare(ctx, req.UserID, req.Scope, req.ScopeID)
	if err != nil {
		return nil, err
	}
	enrollment.Status = models.EnrollmentStatusPending
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.emitAudit(ctx, actorID, models.AuditActionEnrollmentGrant, enrollment.ID, nil, enrollment)
	return enrollment, nil
}

// SelfEnroll lets a student enroll themselves on free content. The grant
// activates immediately; paid content requires a staff grant.
func (s *EnrollmentService) SelfEnroll(ctx context.Context, req SelfEnrollRequest, studentID string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid self-enroll payload")
	}
	enrollment, err := s.prepare(ctx, studentID, req.Scope, req.ScopeID)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.IsFree() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "self-enrollment is limited to free content")
	}
	now := time.Now().UTC()
	enrollment.Status = models.EnrollmentStatusActive
	enrollment.ActivatedAt = &now
	enrollment.ActivatedBy = &studentID
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.invalidateRoster(ctx)
	s.emitAudit(ctx, studentID, models.AuditActionEnrollmentGrant, enrollment.ID, nil, enrollment)
	return enrollment, nil
}

// BulkGrant applies Grant per student, collecting failures instead of
// aborting the batch.
func (s *EnrollmentService) BulkGrant(ctx context.Context, req BulkGrantRequest, actorID string) (*BulkGrantResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grant payload")
	}
	result := &BulkGrantResult{Granted: []string{}, Skipped: []BulkGrantSkipped{}}
	seen := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		_, err := s.Grant(ctx, GrantEnrollmentRequest{UserID: userID, Scope: req.Scope, ScopeID: req.ScopeID}, actorID)
		if err != nil {
			result.Skipped = append(result.Skipped, BulkGrantSkipped{UserID: userID, Reason: appErrors.FromError(err).Message})
			continue
		}
		result.Granted = append(result.Granted, userID)
	}
	return result, nil
}

// Activate moves a pending or suspended enrollment to active. Activating an
// already-active enrollment succeeds without touching the row.
func (s *EnrollmentService) Activate(ctx context.Context, id, actorID string) (*models.Enrollment, error) {
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status == models.EnrollmentStatusActive {
		return enrollment, nil
	}
	if enrollment.Status != models.EnrollmentStatusPending && enrollment.Status != models.EnrollmentStatusSuspended {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending or suspended enrollments can be activated")
	}
	before := *enrollment
	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:          id,
		Expected:    enrollment.Status,
		Next:        models.EnrollmentStatusActive,
		ActivatedAt: &now,
		ActivatedBy: &actorID,
	}
	if enrollment.Status == models.EnrollmentStatusSuspended {
		params.ClearSuspension = true
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}
	enrollment.Status = models.EnrollmentStatusActive
	enrollment.ActivatedAt = &now
	enrollment.ActivatedBy = &actorID
	enrollment.SuspendedAt = nil
	enrollment.SuspendedBy = nil
	enrollment.SuspendedReason = nil
	s.invalidateRoster(ctx)
	s.emitAudit(ctx, actorID, models.AuditActionEnrollmentActivate, id, &before, enrollment)
	return enrollment, nil
}

// Suspend pauses an active enrollment with a mandatory reason.
func (s *EnrollmentService) Suspend(ctx context.Context, id string, req SuspendEnrollmentRequest, actorID string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "suspension reason is required")
	}
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only active enrollments can be suspended")
	}
	before := *enrollment
	now := time.Now().UTC()
	reason := req.Reason
	params := repository.TransitionParams{
		ID:              id,
		Expected:        models.EnrollmentStatusActive,
		Next:            models.EnrollmentStatusSuspended,
		SuspendedAt:     &now,
		SuspendedBy:     &actorID,
		SuspendedReason: &reason,
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}
	enrollment.Status = models.EnrollmentStatusSuspended
	enrollment.SuspendedAt = &now
	enrollment.SuspendedBy = &actorID
	enrollment.SuspendedReason = &reason
	s.invalidateRoster(ctx)
	s.emitAudit(ctx, actorID, models.AuditActionEnrollmentSuspend, id, &before, enrollment)
	return enrollment, nil
}

// Terminate expires an enrollment. The activity summary is frozen first; if
// the freeze fails the status is left untouched.
func (s *EnrollmentService) Terminate(ctx context.Context, id, actorID string) (*models.Enrollment, error) {
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive && enrollment.Status != models.EnrollmentStatusSuspended {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only active or suspended enrollments can be terminated")
	}
	if s.freezer == nil {
		return nil, appErrors.Clone(appErrors.ErrFreezeFailed, "summary freezer unavailable")
	}
	if _, err := s.freezer.Freeze(ctx, enrollment, actorID); err != nil {
		return nil, err
	}
	before := *enrollment
	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:        id,
		Expected:  enrollment.Status,
		Next:      models.EnrollmentStatusExpired,
		ExpiredAt: &now,
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}
	enrollment.Status = models.EnrollmentStatusExpired
	enrollment.ExpiredAt = &now
	s.invalidateRoster(ctx)
	s.emitAudit(ctx, actorID, models.AuditActionEnrollmentTerminate, id, &before, enrollment)
	return enrollment, nil
}

// Reactivate brings an expired enrollment back to active and clears the
// expiry marker. The earlier termination stays visible through the frozen
// summary and the audit trail.
func (s *EnrollmentService) Reactivate(ctx context.Context, id, actorID string) (*models.Enrollment, error) {
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusExpired {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only expired enrollments can be reactivated")
	}
	before := *enrollment
	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:          id,
		Expected:    models.EnrollmentStatusExpired,
		Next:        models.EnrollmentStatusActive,
		ActivatedAt: &now,
		ActivatedBy: &actorID,
		ClearExpiry: true,
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}
	enrollment.Status = models.EnrollmentStatusActive
	enrollment.ActivatedAt = &now
	enrollment.ActivatedBy = &actorID
	enrollment.ExpiredAt = nil
	s.invalidateRoster(ctx)
	s.emitAudit(ctx, actorID, models.AuditActionEnrollmentReactivate, id, &before, enrollment)
	return enrollment, nil
}

// prepare validates the student and scope target and builds the base row.
func (s *EnrollmentService) prepare(ctx context.Context, userID string, scope models.EnrollmentScope, scopeID string) (*models.Enrollment, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if user.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollments are limited to student accounts")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student account is inactive")
	}

	var courseID string
	switch scope {
	case models.EnrollmentScopeCourse:
		course, err := s.courses.FindByID(ctx, scopeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		courseID = course.ID
	case models.EnrollmentScopeChapter:
		chapter, err := s.courses.FindChapterByID(ctx, scopeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "chapter not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chapter")
		}
		courseID = chapter.CourseID
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope must be COURSE or CHAPTER")
	}

	exists, err := s.repo.ExistsForScope(ctx, userID, scope, scopeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}

	return &models.Enrollment{
		UserID:     userID,
		Scope:      scope,
		ScopeID:    scopeID,
		CourseID:   courseID,
		EnrolledAt: time.Now().UTC(),
	}, nil
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) transition(ctx context.Context, params repository.TransitionParams) error {
	if err := s.repo.UpdateStatusGuarded(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment status changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	return nil
}

func (s *EnrollmentService) invalidateRoster(ctx context.Context) {
	if s.roster == nil {
		return
	}
	if err := s.roster.DeleteByPattern(ctx, "audience:roster:*"); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.Error(err))
	}
}

func (s *EnrollmentService) emitAudit(ctx context.Context, actorID, action, enrollmentID string, before, after *models.Enrollment) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &enrollmentID,
		IPAddress:  "system",
		UserAgent:  "enrollment-service",
	}
	if before != nil {
		log.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		log.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

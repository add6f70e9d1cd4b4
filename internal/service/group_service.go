package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
)

type groupStore interface {
	ListGroups(ctx context.Context, grade string) ([]models.CenterGroup, error)
	FindGroupByID(ctx context.Context, id string) (*models.CenterGroup, error)
	ListMembers(ctx context.Context, groupID string, activeOnly bool) ([]models.MembershipDetail, error)
	FindActiveMembership(ctx context.Context, studentID string) (*models.GroupMembership, error)
	DeactivateMembership(ctx context.Context, id string) error
	ReactivateOrCreateMembership(ctx context.Context, groupID, studentID string) (*models.GroupMembership, error)
	CreateTransferRecord(ctx context.Context, record *models.TransferRecord) error
	ListTransfersByStudent(ctx context.Context, studentID string) ([]models.TransferRecord, error)
}

// TransferGroupRequest moves a student between center groups. FromGroupID is
// optional; when omitted the current active membership is looked up.
type TransferGroupRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	FromGroupID string `json:"from_group_id"`
	ToGroupID   string `json:"to_group_id" validate:"required"`
	Reason      string `json:"reason"`
}

// GroupService manages center group membership and the transfer protocol.
type GroupService struct {
	repo      groupStore
	users     userReader
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService constructs GroupService.
func NewGroupService(repo groupStore, users userReader, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{repo: repo, users: users, audit: audit, validator: validate, logger: logger}
}

// ListGroups returns active center groups.
func (s *GroupService) ListGroups(ctx context.Context, grade string) ([]models.CenterGroup, error) {
	groups, err := s.repo.ListGroups(ctx, grade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

// ListMembers returns memberships of a group.
func (s *GroupService) ListMembers(ctx context.Context, groupID string, activeOnly bool) ([]models.MembershipDetail, error) {
	if _, err := s.repo.FindGroupByID(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	members, err := s.repo.ListMembers(ctx, groupID, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group members")
	}
	return members, nil
}

// ListTransfers returns a student's transfer history.
func (s *GroupService) ListTransfers(ctx context.Context, studentID string) ([]models.TransferRecord, error) {
	records, err := s.repo.ListTransfersByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transfers")
	}
	return records, nil
}

// Transfer moves a student to a new group. The protocol order is fixed:
// eligibility check, deactivate the old membership, reactivate or create the
// new one, append the transfer record. Attendance and attempt history keeps
// its original group references.
func (s *GroupService) Transfer(ctx context.Context, req TransferGroupRequest, actorID string) (*models.GroupMembership, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "group membership is limited to students")
	}

	target, err := s.repo.FindGroupByID(ctx, req.ToGroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target group")
	}
	if !target.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "target group is inactive")
	}
	if !target.Eligible(student.AcademicYear, student.LanguageTrack) {
		return nil, appErrors.Clone(appErrors.ErrEligibilityViolation, "")
	}

	var current *models.GroupMembership
	current, err = s.repo.FindActiveMembership(ctx, req.StudentID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current membership")
		}
		current = nil
	}
	if req.FromGroupID != "" {
		if current == nil || current.GroupID != req.FromGroupID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is not an active member of the source group")
		}
	}
	if current != nil && current.GroupID == req.ToGroupID {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is already in the target group")
	}

	var previousGroupID *string
	if current != nil {
		if err := s.repo.DeactivateMembership(ctx, current.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate current membership")
		}
		groupID := current.GroupID
		previousGroupID = &groupID
	}

	membership, err := s.repo.ReactivateOrCreateMembership(ctx, req.ToGroupID, req.StudentID)
	if err != nil {
		// the old membership is already deactivated, the student is
		// currently groupless
		s.logger.Error("transfer left student without active group",
			zap.String("student_id", req.StudentID),
			zap.String("to_group_id", req.ToGroupID),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrTransferIncomplete.Code, appErrors.ErrTransferIncomplete.Status, appErrors.ErrTransferIncomplete.Message)
	}

	record := &models.TransferRecord{
		StudentID:       req.StudentID,
		PreviousGroupID: previousGroupID,
		NewGroupID:      req.ToGroupID,
		PerformedBy:     actorID,
	}
	if req.Reason != "" {
		record.Reason = &req.Reason
	}
	if err := s.repo.CreateTransferRecord(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransferIncomplete.Code, appErrors.ErrTransferIncomplete.Status, "membership moved but transfer record was not persisted")
	}

	s.emitAudit(ctx, actorID, record)
	return membership, nil
}

func (s *GroupService) emitAudit(ctx context.Context, actorID string, record *models.TransferRecord) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(record)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionGroupTransfer,
		Resource:   "group_membership",
		ResourceID: &record.StudentID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "group-service",
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

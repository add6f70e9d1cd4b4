package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madrasati/tuition-core-api/internal/models"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
	"github.com/madrasati/tuition-core-api/pkg/jobs"
	"github.com/madrasati/tuition-core-api/pkg/mailer"
)

type notificationStore interface {
	CreateBroadcast(ctx context.Context, notification *models.Notification) error
	CreateForRecipients(ctx context.Context, base models.Notification, recipientIDs []string) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
}

// Resolver turns target specs into audiences.
type Resolver interface {
	Resolve(ctx context.Context, spec models.TargetSpec) (*models.Resolution, error)
	Materialize(ctx context.Context, spec models.TargetSpec) ([]models.User, error)
}

// Translator fills in missing secondary-language text. Implementations are
// best-effort; dispatch never fails on translation trouble.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// PassthroughTranslator returns the original text unchanged.
type PassthroughTranslator struct{}

// Translate implements Translator.
func (PassthroughTranslator) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}

type emailEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type dispatchRecorder interface {
	RecordDispatch(targetType string, recipients int)
}

// EmailJobType identifies queued notification email batches.
const EmailJobType = "notification_email"

// EmailJobPayload is what the email worker consumes.
type EmailJobPayload struct {
	Recipients []mailer.Recipient
	Content    mailer.Content
}

// DispatchRequest describes an outgoing notification.
type DispatchRequest struct {
	Type       string            `json:"type" validate:"required"`
	Title      string            `json:"title" validate:"required"`
	Message    string            `json:"message" validate:"required"`
	TitleAlt   string            `json:"title_alt"`
	MessageAlt string            `json:"message_alt"`
	Target     models.TargetSpec `json:"target" validate:"required"`
	SendEmail  bool              `json:"send_email"`
}

// DispatchResult summarises a dispatch.
type DispatchResult struct {
	Broadcast      bool `json:"broadcast"`
	RecipientCount int  `json:"recipient_count"`
	EmailQueued    bool `json:"email_queued"`
}

// NotificationService orchestrates notification dispatches.
type NotificationService struct {
	repo       notificationStore
	resolver   Resolver
	translator Translator
	queue      emailEnqueuer
	audit      auditWriter
	metrics    dispatchRecorder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo notificationStore, resolver Resolver, translator Translator, queue emailEnqueuer, audit auditWriter, metrics dispatchRecorder, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if translator == nil {
		translator = PassthroughTranslator{}
	}
	return &NotificationService{repo: repo, resolver: resolver, translator: translator, queue: queue, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// List returns notifications for the back office.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
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
	return notifications, pagination, nil
}

// Preview resolves the audience without persisting anything.
func (s *NotificationService) Preview(ctx context.Context, spec models.TargetSpec) (*models.Resolution, []models.User, error) {
	resolution, err := s.resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	users, err := s.resolver.Materialize(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	return resolution, users, nil
}

// Dispatch resolves the audience, persists the notification and hands email
// delivery to the background queue. Persistence failures fail the call;
// everything after persistence is best-effort.
func (s *NotificationService) Dispatch(ctx context.Context, req DispatchRequest, senderID string) (*DispatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dispatch payload")
	}

	resolution, err := s.resolver.Resolve(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	s.fillTranslations(ctx, &req)

	base := models.Notification{
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		TitleAlt:   req.TitleAlt,
		MessageAlt: req.MessageAlt,
		TargetType: req.Target.Type,
		SenderID:   senderID,
	}
	applyTargetColumns(&base, req.Target)

	result := &DispatchResult{Broadcast: resolution.Broadcast}
	if resolution.Broadcast {
		if err := s.repo.CreateBroadcast(ctx, &base); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist notification")
		}
	} else {
		if len(resolution.Recipients) == 0 {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "target resolves to an empty audience")
		}
		if err := s.repo.CreateForRecipients(ctx, base, resolution.Recipients); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist notifications")
		}
		result.RecipientCount = len(resolution.Recipients)
	}

	if req.SendEmail {
		result.EmailQueued = s.queueEmail(ctx, req)
	}
	if s.metrics != nil {
		s.metrics.RecordDispatch(string(req.Target.Type), result.RecipientCount)
	}
	s.emitAudit(ctx, senderID, &base, result)
	return result, nil
}

// queueEmail materializes the concrete audience and enqueues the batch.
// Returns false, without failing the dispatch, when anything goes wrong.
func (s *NotificationService) queueEmail(ctx context.Context, req DispatchRequest) bool {
	if s.queue == nil {
		return false
	}
	users, err := s.resolver.Materialize(ctx, req.Target)
	if err != nil {
		s.logger.Warn("email delivery degraded, audience materialization failed", zap.Error(err))
		return false
	}
	if len(users) == 0 {
		return false
	}
	recipients := make([]mailer.Recipient, 0, len(users))
	for _, user := range users {
		if user.Email == "" {
			continue
		}
		recipients = append(recipients, mailer.Recipient{UserID: user.ID, Name: user.FullName, Email: user.Email})
	}
	if len(recipients) == 0 {
		return false
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: EmailJobType,
		Payload: EmailJobPayload{
			Recipients: recipients,
			Content: mailer.Content{
				Subject:    req.Title,
				Title:      req.Title,
				Message:    req.Message,
				TitleAlt:   req.TitleAlt,
				MessageAlt: req.MessageAlt,
			},
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("email delivery degraded, enqueue failed", zap.Error(err))
		return false
	}
	return true
}

func (s *NotificationService) fillTranslations(ctx context.Context, req *DispatchRequest) {
	if req.TitleAlt == "" {
		if translated, err := s.translator.Translate(ctx, req.Title); err != nil {
			s.logger.Warn("title translation failed, using original", zap.Error(err))
			req.TitleAlt = req.Title
		} else {
			req.TitleAlt = translated
		}
	}
	if req.MessageAlt == "" {
		if translated, err := s.translator.Translate(ctx, req.Message); err != nil {
			s.logger.Warn("message translation failed, using original", zap.Error(err))
			req.MessageAlt = req.Message
		} else {
			req.MessageAlt = translated
		}
	}
}

func (s *NotificationService) emitAudit(ctx context.Context, senderID string, notification *models.Notification, result *DispatchResult) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"target_type": notification.TargetType,
		"broadcast":   result.Broadcast,
		"recipients":  result.RecipientCount,
	})
	resource := notification.ID
	if resource == "" {
		resource = fmt.Sprintf("batch:%s", notification.TargetType)
	}
	log := &models.AuditLog{
		UserID:     &senderID,
		Action:     models.AuditActionNotificationDispatch,
		Resource:   "notification",
		ResourceID: &resource,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "notification-service",
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// applyTargetColumns maps the target onto the persisted columns so the
// read side can match broadcast rows against a viewer's profile.
func applyTargetColumns(notification *models.Notification, spec models.TargetSpec) {
	switch spec.Type {
	case models.TargetCourse:
		notification.TargetID = &spec.CourseID
		notification.CourseID = &spec.CourseID
	case models.TargetLesson:
		notification.TargetID = &spec.LessonID
		if spec.CourseID != "" {
			notification.CourseID = &spec.CourseID
		}
	case models.TargetGrade:
		notification.TargetValue = &spec.Grade
	case models.TargetAttendanceMode:
		mode := string(spec.AttendanceMode)
		notification.TargetValue = &mode
	case models.TargetCustomFilter:
		if spec.Filter != nil {
			notification.TargetID = &spec.Filter.ExamID
			condition := string(spec.Filter.Condition)
			notification.TargetValue = &condition
		}
	}
}

// EmailDeliveryHandler builds the queue handler that pushes batches through
// the configured mailer.
func EmailDeliveryHandler(m mailer.Mailer, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(EmailJobPayload)
		if !ok {
			logger.Error("dropping email job with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		result, err := m.SendBatch(ctx, payload.Recipients, payload.Content)
		if err != nil {
			return fmt.Errorf("send notification batch: %w", err)
		}
		if result.Failed > 0 {
			logger.Warn("notification email delivery degraded",
				zap.Int("sent", result.Sent),
				zap.Int("failed", result.Failed),
			)
		}
		return nil
	}
}

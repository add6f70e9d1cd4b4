package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/madrasati/tuition-core-api/internal/models"
	"github.com/madrasati/tuition-core-api/internal/service"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
	"github.com/madrasati/tuition-core-api/pkg/export"
	"github.com/madrasati/tuition-core-api/pkg/response"
)

type notificationDispatcher interface {
	Dispatch(ctx context.Context, req service.DispatchRequest, senderID string) (*service.DispatchResult, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error)
	Preview(ctx context.Context, spec models.TargetSpec) (*models.Resolution, []models.User, error)
}

// NotificationHandler exposes dispatch and audience resolution endpoints.
type NotificationHandler struct {
	notifications notificationDispatcher
	csv           *export.CSVExporter
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(notifications notificationDispatcher) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		csv:           export.NewCSVExporter(),
	}
}

// Dispatch godoc
// @Summary Dispatch a notification to a target audience
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.DispatchRequest true "Dispatch payload"
// @Success 201 {object} response.Envelope
// @Router /notifications [post]
func (h *NotificationHandler) Dispatch(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid dispatch payload"))
		return
	}
	result, err := h.notifications.Dispatch(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// List godoc
// @Summary List sent notifications
// @Tags Notifications
// @Produce json
// @Param senderId query string false "Sender ID"
// @Param targetType query string false "Target type"
// @Param courseId query string false "Course ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	filter := models.NotificationFilter{
		SenderID: strings.TrimSpace(c.Query("senderId")),
		CourseID: strings.TrimSpace(c.Query("courseId")),
	}
	if raw := c.Query("targetType"); raw != "" {
		filter.TargetType = models.NotificationTargetType(strings.ToUpper(raw))
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, pagination, err := h.notifications.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Preview godoc
// @Summary Preview the audience a target spec resolves to
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body models.TargetSpec true "Target spec"
// @Success 200 {object} response.Envelope
// @Router /notifications/resolve [post]
func (h *NotificationHandler) Preview(c *gin.Context) {
	var spec models.TargetSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid target spec"))
		return
	}
	resolution, recipients, err := h.notifications.Preview(c.Request.Context(), spec)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"broadcast":  resolution.Broadcast,
		"count":      len(recipients),
		"recipients": recipients,
	}, nil)
}

// ExportAudience godoc
// @Summary Download the resolved audience as CSV
// @Tags Notifications
// @Accept json
// @Produce octet-stream
// @Param payload body models.TargetSpec true "Target spec"
// @Success 200 {file} binary
// @Router /notifications/resolve/export [post]
func (h *NotificationHandler) ExportAudience(c *gin.Context) {
	var spec models.TargetSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid target spec"))
		return
	}
	_, recipients, err := h.notifications.Preview(c.Request.Context(), spec)
	if err != nil {
		response.Error(c, err)
		return
	}

	rows := make([]map[string]string, 0, len(recipients))
	for _, user := range recipients {
		rows = append(rows, map[string]string{
			"ID":            user.ID,
			"Name":          user.FullName,
			"Email":         user.Email,
			"Academic Year": user.AcademicYear,
		})
	}
	content, err := h.csv.Render(export.Dataset{
		Headers: []string{"ID", "Name", "Email", "Academic Year"},
		Rows:    rows,
	})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audience csv"))
		return
	}

	filename := fmt.Sprintf("audience-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv", content)
}

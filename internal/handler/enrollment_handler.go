package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/madrasati/tuition-core-api/internal/models"
	"github.com/madrasati/tuition-core-api/internal/service"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
	"github.com/madrasati/tuition-core-api/pkg/export"
	"github.com/madrasati/tuition-core-api/pkg/response"
)

// EnrollmentHandler exposes REST endpoints for the enrollment lifecycle.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	summaries   *service.SummaryService
	pdf         *export.PDFExporter
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, summaries *service.SummaryService) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: enrollments,
		summaries:   summaries,
		pdf:         export.NewPDFExporter(),
	}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param userId query string false "Student ID"
// @Param courseId query string false "Course ID"
// @Param scope query string false "COURSE or CHAPTER"
// @Param status query string false "Enrollment status"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		UserID:    strings.TrimSpace(c.Query("userId")),
		CourseID:  strings.TrimSpace(c.Query("courseId")),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	if raw := c.Query("scope"); raw != "" {
		filter.Scope = models.EnrollmentScope(strings.ToUpper(raw))
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = models.EnrollmentStatus(strings.ToUpper(raw))
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get enrollment detail
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Grant godoc
// @Summary Grant an enrollment to a student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.GrantEnrollmentRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Grant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GrantEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid grant payload"))
		return
	}
	enrollment, err := h.enrollments.Grant(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, enrollment, nil)
}

// SelfEnroll godoc
// @Summary Self-enroll into free content
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SelfEnrollRequest true "Self enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments/self [post]
func (h *EnrollmentHandler) SelfEnroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SelfEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment payload"))
		return
	}
	enrollment, err := h.enrollments.SelfEnroll(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, enrollment, nil)
}

// BulkGrant godoc
// @Summary Grant an enrollment to multiple students
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.BulkGrantRequest true "Bulk grant payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/bulk [post]
func (h *EnrollmentHandler) BulkGrant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BulkGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk grant payload"))
		return
	}
	result, err := h.enrollments.BulkGrant(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Activate godoc
// @Summary Activate a pending or suspended enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/activate [post]
func (h *EnrollmentHandler) Activate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.enrollments.Activate(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Suspend godoc
// @Summary Suspend an active enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SuspendEnrollmentRequest true "Suspension reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/suspend [post]
func (h *EnrollmentHandler) Suspend(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SuspendEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid suspension payload"))
		return
	}
	enrollment, err := h.enrollments.Suspend(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Terminate godoc
// @Summary Terminate an enrollment and freeze its activity summary
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/terminate [post]
func (h *EnrollmentHandler) Terminate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.enrollments.Terminate(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reactivate godoc
// @Summary Reactivate an expired enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/reactivate [post]
func (h *EnrollmentHandler) Reactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.enrollments.Reactivate(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Summary godoc
// @Summary Get the frozen activity summary of an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/summary [get]
func (h *EnrollmentHandler) Summary(c *gin.Context) {
	if h.summaries == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "summary service not configured"))
		return
	}
	summary, err := h.summaries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// SummaryPDF godoc
// @Summary Download the frozen activity summary as PDF
// @Tags Enrollments
// @Produce octet-stream
// @Param id path string true "Enrollment ID"
// @Success 200 {file} binary
// @Router /enrollments/{id}/summary/export [get]
func (h *EnrollmentHandler) SummaryPDF(c *gin.Context) {
	if h.summaries == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "summary service not configured"))
		return
	}
	summary, err := h.summaries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	group := "-"
	if summary.GroupID != nil {
		group = *summary.GroupID
	}
	data := export.Dataset{
		Headers: []string{"Field", "Value"},
		Rows: []map[string]string{
			{"Field": "Enrollment", "Value": summary.EnrollmentID},
			{"Field": "Student", "Value": summary.UserID},
			{"Field": "Course", "Value": summary.CourseID},
			{"Field": "Progress", "Value": fmt.Sprintf("%d%%", summary.Progress)},
			{"Field": "Attendance rate", "Value": fmt.Sprintf("%.0f%%", summary.AttendanceRate*100)},
			{"Field": "Exam average", "Value": fmt.Sprintf("%.1f%%", summary.ExamAverage)},
			{"Field": "Center group", "Value": group},
			{"Field": "Frozen at", "Value": summary.FrozenAt.Format("2006-01-02 15:04")},
		},
	}
	content, err := h.pdf.Render(data, "Activity Summary")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render summary pdf"))
		return
	}

	filename := fmt.Sprintf("summary-%s.pdf", summary.EnrollmentID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", content)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/madrasati/tuition-core-api/internal/service"
	appErrors "github.com/madrasati/tuition-core-api/pkg/errors"
	"github.com/madrasati/tuition-core-api/pkg/response"
)

// GroupHandler exposes center group and membership endpoints.
type GroupHandler struct {
	groups *service.GroupService
}

// NewGroupHandler constructs the handler.
func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// List godoc
// @Summary List active center groups
// @Tags Groups
// @Produce json
// @Param grade query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.groups.ListGroups(c.Request.Context(), c.Query("grade"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Members godoc
// @Summary List group members
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Param includeInactive query bool false "Include historical members"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/members [get]
func (h *GroupHandler) Members(c *gin.Context) {
	activeOnly := c.Query("includeInactive") != "true"
	members, err := h.groups.ListMembers(c.Request.Context(), c.Param("id"), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// Transfer godoc
// @Summary Move a student to another center group
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body service.TransferGroupRequest true "Transfer payload"
// @Success 200 {object} response.Envelope
// @Router /groups/transfers [post]
func (h *GroupHandler) Transfer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.TransferGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transfer payload"))
		return
	}
	membership, err := h.groups.Transfer(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, membership, nil)
}

// TransferHistory godoc
// @Summary List a student's transfer history
// @Tags Groups
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transfers [get]
func (h *GroupHandler) TransferHistory(c *gin.Context) {
	records, err := h.groups.ListTransfers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

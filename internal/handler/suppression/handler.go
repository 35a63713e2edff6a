package suppression

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	suppressionsvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/suppression"
	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/httputil"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/middleware"
)

type Handler struct {
	service suppressionsvc.Service
}

func NewHandler(service suppressionsvc.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	suppressions := r.Group("/suppressions")
	{
		suppressions.GET("", h.List)
		suppressions.GET("/stats", h.Stats)
		suppressions.POST("", h.Add)
		suppressions.DELETE("/:email", h.Remove)
	}
}

func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	records, total, err := h.service.List(c.Request.Context(), middleware.OrganizationID(c),
		model.Pagination{Page: page, PageSize: pageSize})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"suppressions": records,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
	})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), middleware.OrganizationID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, stats)
}

type addRequest struct {
	Email      string                `json:"email" binding:"required,email"`
	Type       model.SuppressionType `json:"type" binding:"required"`
	Reason     string                `json:"reason"`
	CampaignID *uuid.UUID            `json:"campaign_id"`
}

func (h *Handler) Add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	record, err := h.service.Add(c.Request.Context(), middleware.OrganizationID(c),
		req.Email, req.Type, req.Reason, req.CampaignID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, record)
}

func (h *Handler) Remove(c *gin.Context) {
	email := c.Param("email")
	if email == "" {
		httputil.RespondWithError(c, apperrors.NewBadRequest("email is required", nil))
		return
	}

	if err := h.service.Remove(c.Request.Context(), middleware.OrganizationID(c), email); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"removed": email})
}

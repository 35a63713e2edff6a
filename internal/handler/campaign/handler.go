package campaign

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	campaignsvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/campaign"
	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/httputil"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/middleware"
)

type Handler struct {
	service campaignsvc.Service
}

func NewHandler(service campaignsvc.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	campaigns := r.Group("/campaigns")
	{
		campaigns.POST("", h.Create)
		campaigns.GET("", h.List)
		campaigns.GET("/:id", h.Get)
		campaigns.POST("/:id/start", h.Start)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req campaignsvc.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	campaign, err := h.service.Create(c.Request.Context(), middleware.OrganizationID(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, campaign)
}

func (h *Handler) List(c *gin.Context) {
	campaigns, err := h.service.List(c.Request.Context(), middleware.OrganizationID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, campaigns)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid campaign ID", err))
		return
	}

	campaign, err := h.service.Get(c.Request.Context(), middleware.OrganizationID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, campaign)
}

type startRequest struct {
	Action campaignsvc.StartAction `json:"action" binding:"required"`
}

func (h *Handler) Start(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid campaign ID", err))
		return
	}

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	campaign, err := h.service.Start(c.Request.Context(), middleware.OrganizationID(c), id, req.Action)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, campaign)
}

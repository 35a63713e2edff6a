package quota

import (
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	quotasvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/quota"
	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/httputil"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/middleware"
)

const cacheTTL = 30 * time.Second

// Handler serves the quota read model. Reads are cached briefly per tenant
// because the dashboard polls this endpoint.
type Handler struct {
	service quotasvc.Service
	cache   *gocache.Cache
}

func NewHandler(service quotasvc.Service) *Handler {
	return &Handler{
		service: service,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	quota := r.Group("/quota")
	{
		quota.GET("", h.Get)
		quota.PUT("", h.Update)
	}
}

func (h *Handler) Get(c *gin.Context) {
	orgID := middleware.OrganizationID(c)
	if cached, ok := h.cache.Get(orgID); ok {
		httputil.RespondWithSuccess(c, cached)
		return
	}

	info, err := h.service.GetQuotaInfo(c.Request.Context(), orgID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.cache.Set(orgID, info, gocache.DefaultExpiration)
	httputil.RespondWithSuccess(c, info)
}

type updateRequest struct {
	MonthlyQuota int `json:"monthly_quota" binding:"required,min=1"`
}

func (h *Handler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	orgID := middleware.OrganizationID(c)
	if err := h.service.UpdateMonthlyQuota(c.Request.Context(), orgID, req.MonthlyQuota); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.cache.Delete(orgID)

	info, err := h.service.GetQuotaInfo(c.Request.Context(), orgID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, info)
}

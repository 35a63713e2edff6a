package business

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/httputil"
)

// Handler exposes the read-only business directory used when picking
// campaign recipients.
type Handler struct {
	repo repository.BusinessRepository
}

func NewHandler(repo repository.BusinessRepository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/businesses", h.List)
}

func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	businesses, total, err := h.repo.List(c.Request.Context(), repository.BusinessFilter{
		City:       c.Query("city"),
		Industry:   c.Query("industry"),
		Search:     c.Query("search"),
		Pagination: model.Pagination{Page: page, PageSize: pageSize},
	})
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewInternal(err))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"businesses": businesses,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}

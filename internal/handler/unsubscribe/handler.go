package unsubscribe

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
	suppressionsvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/suppression"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/auth"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>Unsubscribed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 80px;">
<h1>You have been unsubscribed</h1>
<p>You will no longer receive emails from this sender.</p>
</body>
</html>`

const errorPage = `<!DOCTYPE html>
<html>
<head><title>Invalid link</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 80px;">
<h1>This unsubscribe link is invalid or has expired</h1>
</body>
</html>`

// Handler serves the public one-click unsubscribe endpoint. The token in the
// URL is the only credential; no session or tenant header is involved.
type Handler struct {
	tokens      *auth.TokenService
	campaigns   repository.CampaignRepository
	suppression suppressionsvc.Service
	logger      *logger.Logger
}

func NewHandler(tokens *auth.TokenService, campaigns repository.CampaignRepository, suppression suppressionsvc.Service, log *logger.Logger) *Handler {
	return &Handler{tokens: tokens, campaigns: campaigns, suppression: suppression, logger: log}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/unsubscribe/:token", h.Unsubscribe)
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	claims, err := h.tokens.VerifyUnsubscribeToken(c.Param("token"))
	if err != nil {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(errorPage))
		return
	}

	itemID, err := uuid.Parse(claims.CampaignItemID)
	if err != nil {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(errorPage))
		return
	}

	email, campaignID, err := h.campaigns.ResolveItemEmail(c.Request.Context(), claims.OrganizationID, itemID)
	if err != nil {
		h.logger.Error(err, "failed to resolve unsubscribe target",
			"organization_id", claims.OrganizationID,
			"item_id", claims.CampaignItemID)
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(errorPage))
		return
	}
	if email == "" {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(errorPage))
		return
	}

	_, err = h.suppression.Add(c.Request.Context(), claims.OrganizationID, email,
		model.SuppressionUnsubscribed, "one-click unsubscribe", &campaignID)
	if err != nil {
		h.logger.Error(err, "failed to record unsubscribe",
			"organization_id", claims.OrganizationID)
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(errorPage))
		return
	}

	h.logger.Info("recipient unsubscribed",
		"organization_id", claims.OrganizationID,
		"campaign_id", campaignID.String())
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successPage))
}

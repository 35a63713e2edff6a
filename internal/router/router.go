package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	businesshandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/business"
	campaignhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/campaign"
	healthhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/health"
	quotahandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/quota"
	suppressionhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/suppression"
	unsubscribehandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/unsubscribe"
	webhookhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/webhook"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Business    *businesshandler.Handler
	Campaign    *campaignhandler.Handler
	Quota       *quotahandler.Handler
	Suppression *suppressionhandler.Handler
	Unsubscribe *unsubscribehandler.Handler
	Webhook     *webhookhandler.Handler
	Health      *healthhandler.Handler
}

// Config tunes cross-cutting middleware.
type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

// New assembles the API surface. Tenant-scoped routes live under /api/v1
// behind the organization header; unsubscribe and webhooks are public.
func New(h Handlers, log *logger.Logger, cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	h.Health.RegisterRoutes(r)
	h.Unsubscribe.RegisterRoutes(r)
	h.Webhook.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.TenantRequired())
	{
		h.Business.RegisterRoutes(api)
		h.Campaign.RegisterRoutes(api)
		h.Quota.RegisterRoutes(api)
		h.Suppression.RegisterRoutes(api)
	}

	return r
}

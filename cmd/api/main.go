package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Xianghbb/au-email-marketing-saas/internal/config"
	businesshandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/business"
	campaignhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/campaign"
	healthhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/health"
	quotahandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/quota"
	suppressionhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/suppression"
	unsubscribehandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/unsubscribe"
	webhookhandler "github.com/Xianghbb/au-email-marketing-saas/internal/handler/webhook"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository/postgres"
	"github.com/Xianghbb/au-email-marketing-saas/internal/router"
	campaignsvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/campaign"
	quotasvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/quota"
	suppressionsvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/suppression"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/auth"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/messaging"
	amqpbroker "github.com/Xianghbb/au-email-marketing-saas/pkg/messaging/amqp"
	redisbroker "github.com/Xianghbb/au-email-marketing-saas/pkg/messaging/redis"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Logging.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		log.Fatal(err, "failed to run migrations")
	}

	broker, err := newBroker(cfg, log)
	if err != nil {
		log.Fatal(err, "failed to connect to broker")
	}
	defer broker.Close()

	m := metrics.NewMetrics("email_marketing", "api")

	base := postgres.NewBaseRepository(db, m)
	campaignRepo := postgres.NewCampaignRepository(base)
	quotaRepo := postgres.NewQuotaRepository(base)
	suppressionRepo := postgres.NewSuppressionRepository(base)
	eventRepo := postgres.NewEmailEventRepository(base)
	businessRepo := postgres.NewBusinessRepository(base)

	quotaService := quotasvc.NewService(quotaRepo)
	suppressionService := suppressionsvc.NewService(suppressionRepo)
	campaignService := campaignsvc.NewService(campaignRepo, quotaService, broker, log)
	tokens := auth.NewTokenService(cfg.Workflow.UnsubscribeSecret, cfg.Workflow.UnsubscribeTTL)

	engine := router.New(router.Handlers{
		Business:    businesshandler.NewHandler(businessRepo),
		Campaign:    campaignhandler.NewHandler(campaignService),
		Quota:       quotahandler.NewHandler(quotaService),
		Suppression: suppressionhandler.NewHandler(suppressionService),
		Unsubscribe: unsubscribehandler.NewHandler(tokens, campaignRepo, suppressionService, log),
		Webhook:     webhookhandler.NewHandler(suppressionService, eventRepo, log),
		Health:      healthhandler.NewHandler(db),
	}, log, router.Config{
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		log.Info("api server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "forced shutdown")
	}
}

func newBroker(cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	switch cfg.Broker.Kind {
	case "amqp":
		return amqpbroker.NewAMQPBroker(amqpbroker.Config{URL: cfg.Broker.AMQPURL}, log)
	default:
		return redisbroker.NewRedisBroker(redisbroker.Config{URL: cfg.Broker.RedisURL}, log)
	}
}

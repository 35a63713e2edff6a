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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Xianghbb/au-email-marketing-saas/internal/config"
	"github.com/Xianghbb/au-email-marketing-saas/internal/email"
	"github.com/Xianghbb/au-email-marketing-saas/internal/generator"
	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository/postgres"
	quotasvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/quota"
	suppressionsvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/suppression"
	"github.com/Xianghbb/au-email-marketing-saas/internal/worker"
	"github.com/Xianghbb/au-email-marketing-saas/internal/workflow"
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
	metricsPort := flag.Int("metrics-port", 9090, "port for health and metrics")
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

	broker, err := newBroker(cfg, log)
	if err != nil {
		log.Fatal(err, "failed to connect to broker")
	}
	defer broker.Close()

	m := metrics.NewMetrics("email_marketing", "worker")

	base := postgres.NewBaseRepository(db, m)
	campaignRepo := postgres.NewCampaignRepository(base)
	quotaRepo := postgres.NewQuotaRepository(base)
	suppressionRepo := postgres.NewSuppressionRepository(base)
	eventRepo := postgres.NewEmailEventRepository(base)

	quotaService := quotasvc.NewService(quotaRepo)
	suppressionService := suppressionsvc.NewService(suppressionRepo)
	tokens := auth.NewTokenService(cfg.Workflow.UnsubscribeSecret, cfg.Workflow.UnsubscribeTTL)
	transport := email.NewSMTPTransport(cfg.SMTP)
	textGen := generator.NewOpenAIClient(cfg.OpenAI)

	wfCfg := cfg.WorkflowSettings()
	generateWF := workflow.NewGenerateWorkflow(campaignRepo, textGen, broker, log, m, wfCfg)
	sendWF := workflow.NewSendWorkflow(campaignRepo, eventRepo, quotaService, suppressionService,
		transport, tokens, broker, log, m, wfCfg)

	dispatcher := worker.NewDispatcher(broker, log, m, cfg.Workflow.MaxRetries, cfg.Workflow.RetryBackoff)
	dispatcher.Register(model.TopicGenerateEmails, generateWF.Run)
	dispatcher.Register(model.TopicSendBatch, sendWF.Run)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal(err, "failed to start dispatcher")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.Handle("/metrics", promhttp.Handler())
	healthSrv := &http.Server{Addr: fmt.Sprintf(":%d", *metricsPort), Handler: mux}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "health server failed")
		}
	}()

	go quotaMaintenance(ctx, quotaService, log)

	log.Info("worker started",
		"broker", cfg.Broker.Kind,
		"generate_batch_size", wfCfg.GenerateBatchSize,
		"send_batch_size", wfCfg.SendBatchSize)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	dispatcher.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
}

// quotaMaintenance periodically rolls over due quota periods in bulk and
// logs tenants approaching their limit. Correctness does not depend on it;
// reads self-heal their own period.
func quotaMaintenance(ctx context.Context, svc quotasvc.Service, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := svc.ResetDueQuotas(ctx); err != nil {
				log.Error(err, "quota period rollover failed")
			} else if n > 0 {
				log.Info("quota periods rolled over", "organizations", n)
			}

			near, err := svc.OrganizationsNearQuota(ctx)
			if err != nil {
				log.Error(err, "quota threshold scan failed")
				continue
			}
			for _, q := range near {
				log.Warn("organization approaching monthly quota",
					"organization_id", q.OrganizationID,
					"monthly_used", q.MonthlyUsed,
					"monthly_quota", q.MonthlyQuota)
			}
		}
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

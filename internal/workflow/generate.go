package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Xianghbb/au-email-marketing-saas/internal/generator"
	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/messaging"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

// GenerateWorkflow produces email content for a campaign's pending items in
// fixed-size batches. Each run handles one batch and re-emits its own trigger
// event until no pending items remain, at which point the campaign becomes
// ready for sending.
type GenerateWorkflow struct {
	campaigns repository.CampaignRepository
	generator generator.TextGenerator
	publisher messaging.Publisher
	logger    *logger.Logger
	metrics   *metrics.Metrics
	cfg       Config
}

func NewGenerateWorkflow(
	campaigns repository.CampaignRepository,
	gen generator.TextGenerator,
	publisher messaging.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *GenerateWorkflow {
	return &GenerateWorkflow{
		campaigns: campaigns,
		generator: gen,
		publisher: publisher,
		logger:    log,
		metrics:   m,
		cfg:       cfg.withDefaults(),
	}
}

type generationResult struct {
	itemID  uuid.UUID
	subject string
	body    string
	err     error
}

// Run processes one generation batch for the campaign named by the event.
func (w *GenerateWorkflow) Run(ctx context.Context, event model.CampaignEvent) error {
	timer := prometheus.NewTimer(w.metrics.BatchDuration.WithLabelValues("generate"))
	defer timer.ObserveDuration()

	log := w.logger.WithFields(map[string]interface{}{
		"campaign_id":     event.CampaignID.String(),
		"organization_id": event.OrganizationID,
		"workflow":        "generate",
	})

	campaign, err := w.campaigns.Get(ctx, event.OrganizationID, event.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign == nil {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, event.CampaignID)
	}

	// Idempotent on re-delivery: draft moves to generating, generating stays.
	if _, err := w.campaigns.UpdateStatus(ctx, event.OrganizationID, event.CampaignID,
		[]model.CampaignStatus{model.CampaignStatusDraft, model.CampaignStatusGenerating},
		model.CampaignStatusGenerating); err != nil {
		return fmt.Errorf("mark campaign generating: %w", err)
	}

	items, err := w.campaigns.FetchPendingItems(ctx, event.OrganizationID, event.CampaignID, w.cfg.GenerateBatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending items: %w", err)
	}
	if len(items) == 0 {
		return w.finish(ctx, event, log)
	}

	results := make([]generationResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item *model.GenerationItem) {
			defer wg.Done()
			results[i] = w.generateOne(ctx, campaign, item)
		}(i, item)
	}
	wg.Wait()

	var generated, failed int
	for _, r := range results {
		if r.err != nil {
			moved, merr := w.campaigns.MarkItemFailed(ctx, r.itemID, model.ItemStatusPending, r.err.Error())
			if merr != nil {
				return fmt.Errorf("mark item failed: %w", merr)
			}
			if moved {
				failed++
				w.metrics.GenerationFailures.Inc()
				log.Warn("email generation failed", "item_id", r.itemID.String(), "error", r.err.Error())
			}
			continue
		}
		moved, merr := w.campaigns.MarkItemGenerated(ctx, r.itemID, r.subject, r.body)
		if merr != nil {
			return fmt.Errorf("mark item generated: %w", merr)
		}
		if moved {
			generated++
			w.metrics.EmailsGenerated.Inc()
		}
	}

	if generated > 0 || failed > 0 {
		if err := w.campaigns.AddGenerationCounts(ctx, event.OrganizationID, event.CampaignID, generated, failed); err != nil {
			return fmt.Errorf("update generation counts: %w", err)
		}
	}
	log.Info("generation batch complete", "generated", generated, "failed", failed)

	remaining, err := w.campaigns.CountItemsByStatus(ctx, event.OrganizationID, event.CampaignID, model.ItemStatusPending)
	if err != nil {
		return fmt.Errorf("count pending items: %w", err)
	}
	if remaining > 0 {
		if err := w.publisher.Publish(ctx, model.TopicGenerateEmails, event); err != nil {
			return fmt.Errorf("schedule next generation batch: %w", err)
		}
		return nil
	}
	return w.finish(ctx, event, log)
}

func (w *GenerateWorkflow) finish(ctx context.Context, event model.CampaignEvent, log *logger.Logger) error {
	moved, err := w.campaigns.UpdateStatus(ctx, event.OrganizationID, event.CampaignID,
		[]model.CampaignStatus{model.CampaignStatusGenerating}, model.CampaignStatusReady)
	if err != nil {
		return fmt.Errorf("mark campaign ready: %w", err)
	}
	if moved {
		log.Info("campaign generation complete")
	}
	return nil
}

func (w *GenerateWorkflow) generateOne(ctx context.Context, campaign *model.Campaign, item *model.GenerationItem) generationResult {
	prompt := BuildPrompt(campaign, item.Recipient)
	content, err := w.generator.Generate(ctx, prompt, w.cfg.MaxTokens)
	if err != nil {
		return generationResult{itemID: item.ID, err: err}
	}
	subject, body, err := ParseGeneratedEmail(content)
	if err != nil {
		return generationResult{itemID: item.ID, err: err}
	}
	return generationResult{itemID: item.ID, subject: subject, body: body}
}

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Xianghbb/au-email-marketing-saas/internal/email"
	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
	"github.com/Xianghbb/au-email-marketing-saas/internal/service/quota"
	"github.com/Xianghbb/au-email-marketing-saas/internal/service/suppression"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/auth"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/messaging"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

// SendWorkflow dispatches generated emails in fixed-size batches. Every run
// re-checks the quota ledger and the suppression list before touching the
// transport, then re-emits its own trigger event until no generated items
// remain.
type SendWorkflow struct {
	campaigns   repository.CampaignRepository
	events      repository.EmailEventRepository
	quota       quota.Service
	suppression suppression.Service
	transport   email.Transport
	tokens      *auth.TokenService
	publisher   messaging.Publisher
	logger      *logger.Logger
	metrics     *metrics.Metrics
	cfg         Config

	// sleep is swapped out by tests to avoid real batch pacing.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSendWorkflow(
	campaigns repository.CampaignRepository,
	events repository.EmailEventRepository,
	quotaSvc quota.Service,
	suppressionSvc suppression.Service,
	transport email.Transport,
	tokens *auth.TokenService,
	publisher messaging.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *SendWorkflow {
	return &SendWorkflow{
		campaigns:   campaigns,
		events:      events,
		quota:       quotaSvc,
		suppression: suppressionSvc,
		transport:   transport,
		tokens:      tokens,
		publisher:   publisher,
		logger:      log,
		metrics:     m,
		cfg:         cfg.withDefaults(),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type sendResult struct {
	itemID     uuid.UUID
	email      string
	messageID  string
	suppressed bool
	err        error
}

// Run processes one send batch for the campaign named by the event.
func (w *SendWorkflow) Run(ctx context.Context, event model.CampaignEvent) error {
	timer := prometheus.NewTimer(w.metrics.BatchDuration.WithLabelValues("send"))
	defer timer.ObserveDuration()

	log := w.logger.WithFields(map[string]interface{}{
		"campaign_id":     event.CampaignID.String(),
		"organization_id": event.OrganizationID,
		"workflow":        "send",
	})

	campaign, err := w.campaigns.Get(ctx, event.OrganizationID, event.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign == nil {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, event.CampaignID)
	}
	if campaign.Status != model.CampaignStatusReady && campaign.Status != model.CampaignStatusSending {
		return fmt.Errorf("%w: campaign %s is %s", ErrInvalidStatus, event.CampaignID, campaign.Status)
	}

	// Fail closed: a ledger read error blocks the batch rather than risking
	// an over-quota send.
	check, err := w.quota.CheckQuota(ctx, event.OrganizationID, w.cfg.SendBatchSize)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	if !check.Allowed {
		w.metrics.QuotaRejections.Inc()
		return &QuotaExceededError{CampaignID: event.CampaignID.String(), Reason: check.Reason}
	}

	if _, err := w.campaigns.UpdateStatus(ctx, event.OrganizationID, event.CampaignID,
		[]model.CampaignStatus{model.CampaignStatusReady, model.CampaignStatusSending},
		model.CampaignStatusSending); err != nil {
		return fmt.Errorf("mark campaign sending: %w", err)
	}

	items, err := w.campaigns.FetchGeneratedItems(ctx, event.OrganizationID, event.CampaignID, w.cfg.SendBatchSize)
	if err != nil {
		return fmt.Errorf("fetch generated items: %w", err)
	}
	if len(items) == 0 {
		return w.finish(ctx, event, log)
	}

	emails := make([]string, len(items))
	for i, item := range items {
		emails[i] = item.Recipient.Email
	}
	suppressed, err := w.suppression.GetSuppressedEmails(ctx, event.OrganizationID, emails)
	if err != nil {
		return fmt.Errorf("check suppression list: %w", err)
	}

	results := make([]sendResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item *model.SendItem) {
			defer wg.Done()
			results[i] = w.sendOne(ctx, campaign, item, suppressed)
		}(i, item)
	}
	wg.Wait()

	var sent int
	for _, r := range results {
		switch {
		case r.suppressed:
			if _, err := w.campaigns.MarkItemSuppressed(ctx, r.itemID); err != nil {
				return fmt.Errorf("mark item suppressed: %w", err)
			}
			w.metrics.EmailsSuppressed.Inc()
			w.recordEvent(ctx, event, r.itemID, model.EmailEventSuppressed, nil)
			log.Info("recipient suppressed, skipping send", "item_id", r.itemID.String())
		case r.err != nil:
			if _, err := w.campaigns.MarkItemFailed(ctx, r.itemID, model.ItemStatusGenerated, r.err.Error()); err != nil {
				return fmt.Errorf("mark item failed: %w", err)
			}
			w.metrics.SendFailures.Inc()
			log.Warn("email dispatch failed", "item_id", r.itemID.String(), "error", r.err.Error())
		default:
			moved, err := w.campaigns.MarkItemSent(ctx, r.itemID, r.messageID, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("mark item sent: %w", err)
			}
			if moved {
				sent++
				w.metrics.EmailsSent.Inc()
				w.recordEvent(ctx, event, r.itemID, model.EmailEventSent, model.JSONMap{"message_id": r.messageID})
			}
		}
	}

	if sent > 0 {
		if err := w.campaigns.AddSentCount(ctx, event.OrganizationID, event.CampaignID, sent); err != nil {
			return fmt.Errorf("update sent count: %w", err)
		}
		if err := w.quota.IncrementEmailCount(ctx, event.OrganizationID, sent); err != nil {
			return fmt.Errorf("increment quota usage: %w", err)
		}
	}
	log.Info("send batch complete", "sent", sent, "batch_size", len(items))

	if err := w.sleep(ctx, w.cfg.SendInterval); err != nil {
		return err
	}
	if err := w.publisher.Publish(ctx, model.TopicSendBatch, event); err != nil {
		return fmt.Errorf("schedule next send batch: %w", err)
	}
	return nil
}

func (w *SendWorkflow) finish(ctx context.Context, event model.CampaignEvent, log *logger.Logger) error {
	moved, err := w.campaigns.UpdateStatus(ctx, event.OrganizationID, event.CampaignID,
		[]model.CampaignStatus{model.CampaignStatusReady, model.CampaignStatusSending},
		model.CampaignStatusSent)
	if err != nil {
		return fmt.Errorf("mark campaign sent: %w", err)
	}
	if moved {
		if err := w.campaigns.SetSentCountToTotal(ctx, event.OrganizationID, event.CampaignID); err != nil {
			return fmt.Errorf("finalize sent count: %w", err)
		}
		log.Info("campaign send complete")
	}
	return nil
}

func (w *SendWorkflow) sendOne(ctx context.Context, campaign *model.Campaign, item *model.SendItem, suppressed map[string]struct{}) sendResult {
	addr := item.Recipient.Email
	if _, skip := suppressed[addr]; skip {
		return sendResult{itemID: item.ID, email: addr, suppressed: true}
	}

	token, err := w.tokens.GenerateUnsubscribeToken(campaign.OrganizationID, item.ID)
	if err != nil {
		return sendResult{itemID: item.ID, email: addr, err: fmt.Errorf("generate unsubscribe token: %w", err)}
	}
	unsubscribeURL := fmt.Sprintf("%s/unsubscribe/%s", w.cfg.AppBaseURL, token)

	subject := item.Subject
	if subject == "" {
		subject = campaign.Subject
	}
	msg := &email.Message{
		FromName:  campaign.SenderName,
		FromEmail: campaign.SenderEmail,
		To:        addr,
		Subject:   subject,
		HTML:      email.AddUnsubscribeFooter(item.Body, unsubscribeURL),
	}

	messageID, err := w.transport.Send(ctx, msg)
	if err != nil {
		return sendResult{itemID: item.ID, email: addr, err: err}
	}
	return sendResult{itemID: item.ID, email: addr, messageID: messageID}
}

// recordEvent writes a tracking row. Tracking is best effort and never fails
// the batch.
func (w *SendWorkflow) recordEvent(ctx context.Context, event model.CampaignEvent, itemID uuid.UUID, eventType model.EmailEventType, data model.JSONMap) {
	err := w.events.Insert(ctx, &model.EmailEvent{
		OrganizationID: event.OrganizationID,
		CampaignID:     event.CampaignID,
		CampaignItemID: itemID,
		EventType:      eventType,
		EventData:      data,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		w.logger.Error(err, "failed to record email event", "item_id", itemID.String())
	}
}

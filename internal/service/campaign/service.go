package campaign

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
	"github.com/Xianghbb/au-email-marketing-saas/internal/service/quota"
	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/messaging"
)

// StartAction selects which workflow a Start call triggers.
type StartAction string

const (
	ActionGenerate StartAction = "generate"
	ActionSend     StartAction = "send"
)

// CreateRequest carries everything needed to create a campaign. Recipients
// come from the business directory, manual entry, or both.
type CreateRequest struct {
	Name               string                  `json:"name" binding:"required"`
	Subject            string                  `json:"subject"`
	SenderName         string                  `json:"sender_name" binding:"required"`
	SenderEmail        string                  `json:"sender_email" binding:"required,email"`
	ServiceDescription string                  `json:"service_description" binding:"required"`
	Tone               model.CampaignTone      `json:"tone"`
	BusinessIDs        []uuid.UUID             `json:"business_ids"`
	ManualRecipients   []model.ManualRecipient `json:"manual_recipients"`
}

// Service owns campaign lifecycle outside the workflows: creation, reads and
// kicking off generation or sending via the broker.
type Service interface {
	Create(ctx context.Context, orgID string, req *CreateRequest) (*model.Campaign, error)
	Get(ctx context.Context, orgID string, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context, orgID string) ([]*model.Campaign, error)
	Start(ctx context.Context, orgID string, id uuid.UUID, action StartAction) (*model.Campaign, error)
}

type service struct {
	repo      repository.CampaignRepository
	quota     quota.Service
	publisher messaging.Publisher
	logger    *logger.Logger
}

func NewService(repo repository.CampaignRepository, quotaSvc quota.Service, publisher messaging.Publisher, log *logger.Logger) Service {
	return &service{repo: repo, quota: quotaSvc, publisher: publisher, logger: log}
}

func (s *service) Create(ctx context.Context, orgID string, req *CreateRequest) (*model.Campaign, error) {
	if len(req.BusinessIDs) == 0 && len(req.ManualRecipients) == 0 {
		return nil, apperrors.NewBadRequest("campaign must have at least one recipient", nil)
	}
	for _, r := range req.ManualRecipients {
		if !strings.Contains(r.Email, "@") {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid recipient email: %s", r.Email), nil)
		}
	}

	tone := req.Tone
	if tone == "" {
		tone = model.ToneProfessional
	}

	campaign := &model.Campaign{
		OrganizationID:     orgID,
		Name:               req.Name,
		Subject:            req.Subject,
		SenderName:         req.SenderName,
		SenderEmail:        req.SenderEmail,
		ServiceDescription: req.ServiceDescription,
		Tone:               tone,
		Status:             model.CampaignStatusDraft,
		TotalRecipients:    len(req.BusinessIDs) + len(req.ManualRecipients),
	}
	campaign.ID = uuid.New()

	items := make([]*model.CampaignItem, 0, campaign.TotalRecipients)
	for _, bizID := range req.BusinessIDs {
		id := bizID
		item := &model.CampaignItem{CampaignID: campaign.ID, BusinessID: &id, Status: model.ItemStatusPending}
		item.ID = uuid.New()
		items = append(items, item)
	}
	for _, r := range req.ManualRecipients {
		manual := model.ManualRecipient{Name: r.Name, Email: strings.ToLower(strings.TrimSpace(r.Email))}
		item := &model.CampaignItem{CampaignID: campaign.ID, Metadata: &manual, Status: model.ItemStatusPending}
		item.ID = uuid.New()
		items = append(items, item)
	}

	if err := s.repo.Create(ctx, campaign, items); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	s.logger.Info("campaign created",
		"campaign_id", campaign.ID.String(),
		"organization_id", orgID,
		"recipients", campaign.TotalRecipients)
	return campaign, nil
}

func (s *service) Get(ctx context.Context, orgID string, id uuid.UUID) (*model.Campaign, error) {
	campaign, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if campaign == nil {
		return nil, apperrors.NewNotFound("campaign", nil)
	}
	return campaign, nil
}

func (s *service) List(ctx context.Context, orgID string) ([]*model.Campaign, error) {
	campaigns, err := s.repo.List(ctx, orgID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return campaigns, nil
}

// Start validates the requested transition and emits the workflow trigger
// event. The workflows own all subsequent status changes.
func (s *service) Start(ctx context.Context, orgID string, id uuid.UUID, action StartAction) (*model.Campaign, error) {
	campaign, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionGenerate:
		if campaign.Status != model.CampaignStatusDraft {
			return nil, apperrors.NewBadRequest(
				fmt.Sprintf("cannot start generation: campaign is %s", campaign.Status), nil)
		}
		if err := s.publisher.Publish(ctx, model.TopicGenerateEmails, model.CampaignEvent{
			CampaignID:     campaign.ID,
			OrganizationID: orgID,
		}); err != nil {
			return nil, apperrors.NewInternal(err)
		}
	case ActionSend:
		if campaign.Status != model.CampaignStatusReady {
			return nil, apperrors.NewBadRequest(
				fmt.Sprintf("cannot start sending: campaign is %s", campaign.Status), nil)
		}
		remaining := campaign.TotalRecipients - campaign.SentCount
		check, err := s.quota.CheckQuota(ctx, orgID, remaining)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if !check.Allowed {
			return nil, apperrors.NewQuotaExceeded(check.Reason)
		}
		if err := s.publisher.Publish(ctx, model.TopicSendBatch, model.CampaignEvent{
			CampaignID:     campaign.ID,
			OrganizationID: orgID,
		}); err != nil {
			return nil, apperrors.NewInternal(err)
		}
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown action: %s", action), nil)
	}

	s.logger.Info("campaign workflow triggered",
		"campaign_id", campaign.ID.String(),
		"organization_id", orgID,
		"action", string(action))
	return campaign, nil
}

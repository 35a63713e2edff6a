package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
)

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) Create(ctx context.Context, campaign *model.Campaign, items []*model.CampaignItem) error {
	args := m.Called(ctx, campaign, items)
	return args.Error(0)
}

func (m *MockCampaignRepository) Get(ctx context.Context, orgID string, id uuid.UUID) (*model.Campaign, error) {
	args := m.Called(ctx, orgID, id)
	if c := args.Get(0); c != nil {
		return c.(*model.Campaign), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCampaignRepository) List(ctx context.Context, orgID string) ([]*model.Campaign, error) {
	args := m.Called(ctx, orgID)
	if c := args.Get(0); c != nil {
		return c.([]*model.Campaign), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCampaignRepository) UpdateStatus(ctx context.Context, orgID string, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	args := m.Called(ctx, orgID, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) AddSentCount(ctx context.Context, orgID string, id uuid.UUID, n int) error {
	args := m.Called(ctx, orgID, id, n)
	return args.Error(0)
}

func (m *MockCampaignRepository) SetSentCountToTotal(ctx context.Context, orgID string, id uuid.UUID) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

func (m *MockCampaignRepository) AddGenerationCounts(ctx context.Context, orgID string, id uuid.UUID, generated, failed int) error {
	args := m.Called(ctx, orgID, id, generated, failed)
	return args.Error(0)
}

func (m *MockCampaignRepository) FetchPendingItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.GenerationItem, error) {
	args := m.Called(ctx, orgID, campaignID, limit)
	if v := args.Get(0); v != nil {
		return v.([]*model.GenerationItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCampaignRepository) FetchGeneratedItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.SendItem, error) {
	args := m.Called(ctx, orgID, campaignID, limit)
	if v := args.Get(0); v != nil {
		return v.([]*model.SendItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCampaignRepository) CountItemsByStatus(ctx context.Context, orgID string, campaignID uuid.UUID, status model.CampaignItemStatus) (int, error) {
	args := m.Called(ctx, orgID, campaignID, status)
	return args.Int(0), args.Error(1)
}

func (m *MockCampaignRepository) MarkItemGenerated(ctx context.Context, itemID uuid.UUID, subject, body string) (bool, error) {
	args := m.Called(ctx, itemID, subject, body)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) MarkItemFailed(ctx context.Context, itemID uuid.UUID, from model.CampaignItemStatus, message string) (bool, error) {
	args := m.Called(ctx, itemID, from, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) MarkItemSent(ctx context.Context, itemID uuid.UUID, messageID string, sentAt time.Time) (bool, error) {
	args := m.Called(ctx, itemID, messageID, sentAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) MarkItemSuppressed(ctx context.Context, itemID uuid.UUID) (bool, error) {
	args := m.Called(ctx, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) ResolveItemEmail(ctx context.Context, orgID string, itemID uuid.UUID) (string, uuid.UUID, error) {
	args := m.Called(ctx, orgID, itemID)
	return args.String(0), args.Get(1).(uuid.UUID), args.Error(2)
}

type stubQuota struct {
	allowed bool
	reason  string
	err     error
}

func (q *stubQuota) GetQuotaInfo(ctx context.Context, orgID string) (*model.QuotaInfo, error) {
	return nil, errors.New("not implemented")
}

func (q *stubQuota) CheckQuota(ctx context.Context, orgID string, requestedCount int) (*model.QuotaCheckResult, error) {
	if q.err != nil {
		return nil, q.err
	}
	return &model.QuotaCheckResult{Allowed: q.allowed, Reason: q.reason, RequestedCount: requestedCount}, nil
}

func (q *stubQuota) IncrementEmailCount(ctx context.Context, orgID string, count int) error {
	return nil
}

func (q *stubQuota) UpdateMonthlyQuota(ctx context.Context, orgID string, newQuota int) error {
	return nil
}

func (q *stubQuota) ResetDueQuotas(ctx context.Context) (int64, error) { return 0, nil }

func (q *stubQuota) OrganizationsNearQuota(ctx context.Context) ([]*model.OrganizationQuota, error) {
	return nil, nil
}

type stubPublisher struct {
	topics []string
	events []model.CampaignEvent
	err    error
}

func (p *stubPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, message.(model.CampaignEvent))
	return nil
}

func validRequest() *CreateRequest {
	return &CreateRequest{
		Name:               "Spring outreach",
		SenderName:         "Alex",
		SenderEmail:        "alex@example.com",
		ServiceDescription: "Web design for trades businesses",
		ManualRecipients: []model.ManualRecipient{
			{Name: "Acme", Email: "Owner@Acme.Test "},
		},
	}
}

func TestCreate_BuildsItemsFromBothSources(t *testing.T) {
	repo := new(MockCampaignRepository)
	svc := NewService(repo, &stubQuota{allowed: true}, &stubPublisher{}, logger.NewLogger(nil))

	bizID := uuid.New()
	req := validRequest()
	req.BusinessIDs = []uuid.UUID{bizID}

	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	campaign, err := svc.Create(context.Background(), "org_1", req)
	require.NoError(t, err)
	assert.Equal(t, 2, campaign.TotalRecipients)
	assert.Equal(t, model.CampaignStatusDraft, campaign.Status)
	assert.Equal(t, model.ToneProfessional, campaign.Tone, "tone defaults to professional")

	items := repo.Calls[0].Arguments.Get(2).([]*model.CampaignItem)
	require.Len(t, items, 2)
	assert.Equal(t, bizID, *items[0].BusinessID)
	assert.Nil(t, items[0].Metadata)
	assert.Nil(t, items[1].BusinessID)
	assert.Equal(t, "owner@acme.test", items[1].Metadata.Email, "manual emails are normalized")
	for _, item := range items {
		assert.Equal(t, model.ItemStatusPending, item.Status)
	}
}

func TestCreate_RejectsEmptyRecipients(t *testing.T) {
	svc := NewService(new(MockCampaignRepository), &stubQuota{}, &stubPublisher{}, logger.NewLogger(nil))

	req := validRequest()
	req.ManualRecipients = nil

	_, err := svc.Create(context.Background(), "org_1", req)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestStart_GeneratePublishesEvent(t *testing.T) {
	repo := new(MockCampaignRepository)
	pub := &stubPublisher{}
	svc := NewService(repo, &stubQuota{allowed: true}, pub, logger.NewLogger(nil))

	campaign := &model.Campaign{OrganizationID: "org_1", Status: model.CampaignStatusDraft}
	campaign.ID = uuid.New()
	repo.On("Get", mock.Anything, "org_1", campaign.ID).Return(campaign, nil)

	_, err := svc.Start(context.Background(), "org_1", campaign.ID, ActionGenerate)
	require.NoError(t, err)
	require.Equal(t, []string{model.TopicGenerateEmails}, pub.topics)
	assert.Equal(t, campaign.ID, pub.events[0].CampaignID)
	assert.Equal(t, "org_1", pub.events[0].OrganizationID)
}

func TestStart_GenerateRejectsNonDraft(t *testing.T) {
	repo := new(MockCampaignRepository)
	svc := NewService(repo, &stubQuota{allowed: true}, &stubPublisher{}, logger.NewLogger(nil))

	campaign := &model.Campaign{OrganizationID: "org_1", Status: model.CampaignStatusSending}
	campaign.ID = uuid.New()
	repo.On("Get", mock.Anything, "org_1", campaign.ID).Return(campaign, nil)

	_, err := svc.Start(context.Background(), "org_1", campaign.ID, ActionGenerate)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestStart_SendChecksQuotaUpFront(t *testing.T) {
	repo := new(MockCampaignRepository)
	pub := &stubPublisher{}
	svc := NewService(repo, &stubQuota{allowed: false, reason: "monthly quota exceeded"}, pub, logger.NewLogger(nil))

	campaign := &model.Campaign{OrganizationID: "org_1", Status: model.CampaignStatusReady, TotalRecipients: 50}
	campaign.ID = uuid.New()
	repo.On("Get", mock.Anything, "org_1", campaign.ID).Return(campaign, nil)

	_, err := svc.Start(context.Background(), "org_1", campaign.ID, ActionSend)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrQuotaExceeded, appErr.Code)
	assert.Empty(t, pub.topics, "no event published when quota rejects")
}

func TestStart_SendPublishesWhenAllowed(t *testing.T) {
	repo := new(MockCampaignRepository)
	pub := &stubPublisher{}
	svc := NewService(repo, &stubQuota{allowed: true}, pub, logger.NewLogger(nil))

	campaign := &model.Campaign{OrganizationID: "org_1", Status: model.CampaignStatusReady, TotalRecipients: 5}
	campaign.ID = uuid.New()
	repo.On("Get", mock.Anything, "org_1", campaign.ID).Return(campaign, nil)

	_, err := svc.Start(context.Background(), "org_1", campaign.ID, ActionSend)
	require.NoError(t, err)
	assert.Equal(t, []string{model.TopicSendBatch}, pub.topics)
}

func TestGet_NotFound(t *testing.T) {
	repo := new(MockCampaignRepository)
	svc := NewService(repo, &stubQuota{}, &stubPublisher{}, logger.NewLogger(nil))

	id := uuid.New()
	repo.On("Get", mock.Anything, "org_1", id).Return(nil, nil)

	_, err := svc.Get(context.Background(), "org_1", id)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/email"
	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/service/suppression"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

// Shared across all tests in the package; prometheus collectors register
// globally and must only be created once per process.
var testMetrics = metrics.NewMetrics("test", "workflow")

var testLogger = logger.NewLogger(nil)

// fakeCampaignStore is an in-memory CampaignRepository good enough to drive
// both workflows through their batch state machines.
type fakeCampaignStore struct {
	mu         sync.Mutex
	campaign   *model.Campaign
	order      []uuid.UUID
	items      map[uuid.UUID]*model.CampaignItem
	recipients map[uuid.UUID]model.Recipient
}

func newFakeCampaignStore(campaign *model.Campaign) *fakeCampaignStore {
	return &fakeCampaignStore{
		campaign:   campaign,
		items:      make(map[uuid.UUID]*model.CampaignItem),
		recipients: make(map[uuid.UUID]model.Recipient),
	}
}

func (s *fakeCampaignStore) addItem(status model.CampaignItemStatus, r model.Recipient, subject, body string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	item := &model.CampaignItem{CampaignID: s.campaign.ID, Status: status}
	item.ID = id
	if subject != "" {
		item.EmailSubject = &subject
	}
	if body != "" {
		item.EmailContent = &body
	}
	s.items[id] = item
	s.recipients[id] = r
	s.order = append(s.order, id)
	return id
}

func (s *fakeCampaignStore) itemStatus(id uuid.UUID) model.CampaignItemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id].Status
}

func (s *fakeCampaignStore) Create(ctx context.Context, campaign *model.Campaign, items []*model.CampaignItem) error {
	return errors.New("not implemented")
}

func (s *fakeCampaignStore) Get(ctx context.Context, orgID string, id uuid.UUID) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaign == nil || s.campaign.OrganizationID != orgID || s.campaign.ID != id {
		return nil, nil
	}
	c := *s.campaign
	return &c, nil
}

func (s *fakeCampaignStore) List(ctx context.Context, orgID string) ([]*model.Campaign, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeCampaignStore) UpdateStatus(ctx context.Context, orgID string, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaign == nil || s.campaign.OrganizationID != orgID || s.campaign.ID != id {
		return false, nil
	}
	for _, f := range from {
		if s.campaign.Status == f {
			s.campaign.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeCampaignStore) AddSentCount(ctx context.Context, orgID string, id uuid.UUID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.SentCount += n
	return nil
}

func (s *fakeCampaignStore) SetSentCountToTotal(ctx context.Context, orgID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.SentCount = s.campaign.TotalRecipients
	return nil
}

func (s *fakeCampaignStore) AddGenerationCounts(ctx context.Context, orgID string, id uuid.UUID, generated, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.GeneratedCount += generated
	s.campaign.FailedCount += failed
	return nil
}

func (s *fakeCampaignStore) FetchPendingItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.GenerationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.GenerationItem
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		if s.items[id].Status == model.ItemStatusPending {
			out = append(out, &model.GenerationItem{ID: id, Recipient: s.recipients[id]})
		}
	}
	return out, nil
}

func (s *fakeCampaignStore) FetchGeneratedItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.SendItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SendItem
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		item := s.items[id]
		if item.Status != model.ItemStatusGenerated {
			continue
		}
		si := &model.SendItem{ID: id, Recipient: s.recipients[id]}
		if item.EmailSubject != nil {
			si.Subject = *item.EmailSubject
		}
		if item.EmailContent != nil {
			si.Body = *item.EmailContent
		}
		out = append(out, si)
	}
	return out, nil
}

func (s *fakeCampaignStore) CountItemsByStatus(ctx context.Context, orgID string, campaignID uuid.UUID, status model.CampaignItemStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		if item.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *fakeCampaignStore) MarkItemGenerated(ctx context.Context, itemID uuid.UUID, subject, body string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.Status != model.ItemStatusPending {
		return false, nil
	}
	item.Status = model.ItemStatusGenerated
	item.EmailSubject = &subject
	item.EmailContent = &body
	return true, nil
}

func (s *fakeCampaignStore) MarkItemFailed(ctx context.Context, itemID uuid.UUID, from model.CampaignItemStatus, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.Status != from {
		return false, nil
	}
	item.Status = model.ItemStatusFailed
	item.ErrorMessage = &message
	return true, nil
}

func (s *fakeCampaignStore) MarkItemSent(ctx context.Context, itemID uuid.UUID, messageID string, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.Status != model.ItemStatusGenerated {
		return false, nil
	}
	item.Status = model.ItemStatusSent
	item.MessageID = &messageID
	item.SentAt = &sentAt
	return true, nil
}

func (s *fakeCampaignStore) MarkItemSuppressed(ctx context.Context, itemID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.Status != model.ItemStatusGenerated {
		return false, nil
	}
	item.Status = model.ItemStatusSuppressed
	return true, nil
}

func (s *fakeCampaignStore) ResolveItemEmail(ctx context.Context, orgID string, itemID uuid.UUID) (string, uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[itemID]
	if !ok {
		return "", uuid.Nil, nil
	}
	return r.Email, s.items[itemID].CampaignID, nil
}

// fakeEventStore records tracking rows.
type fakeEventStore struct {
	mu     sync.Mutex
	events []*model.EmailEvent
}

func (s *fakeEventStore) Insert(ctx context.Context, event *model.EmailEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeEventStore) ListForCampaign(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.EmailEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, nil
}

func (s *fakeEventStore) countByType(t model.EmailEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

// stubGenerator returns a canned response, failing when the prompt mentions
// one of the configured recipient names.
type stubGenerator struct {
	mu      sync.Mutex
	failFor map[string]bool
	raw     string
	calls   int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	for name := range g.failFor {
		if strings.Contains(prompt, name) {
			return "", errors.New("model unavailable")
		}
	}
	if g.raw != "" {
		return g.raw, nil
	}
	return "Subject: A quick idea for you\n\nHi there,\n\nShort pitch.\n\nCheers", nil
}

// stubTransport records deliveries, failing for configured addresses.
type stubTransport struct {
	mu      sync.Mutex
	failFor map[string]bool
	sent    []*email.Message
}

func (t *stubTransport) Send(ctx context.Context, msg *email.Message) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failFor[msg.To] {
		return "", errors.New("smtp: connection refused")
	}
	t.sent = append(t.sent, msg)
	return fmt.Sprintf("msg-%d", len(t.sent)), nil
}

func (t *stubTransport) sentTo() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, m := range t.sent {
		out[i] = m.To
	}
	return out
}

// stubPublisher records re-emitted workflow events.
type stubPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *stubPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

// stubQuota is a quota.Service with a fixed answer.
type stubQuota struct {
	mu          sync.Mutex
	allowed     bool
	reason      string
	checkErr    error
	checked     int
	incremented int
}

func (q *stubQuota) GetQuotaInfo(ctx context.Context, orgID string) (*model.QuotaInfo, error) {
	return nil, errors.New("not implemented")
}

func (q *stubQuota) CheckQuota(ctx context.Context, orgID string, requestedCount int) (*model.QuotaCheckResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checked++
	if q.checkErr != nil {
		return nil, q.checkErr
	}
	return &model.QuotaCheckResult{Allowed: q.allowed, Reason: q.reason, RequestedCount: requestedCount}, nil
}

func (q *stubQuota) IncrementEmailCount(ctx context.Context, orgID string, count int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.incremented += count
	return nil
}

func (q *stubQuota) UpdateMonthlyQuota(ctx context.Context, orgID string, newQuota int) error {
	return errors.New("not implemented")
}

func (q *stubQuota) ResetDueQuotas(ctx context.Context) (int64, error) {
	return 0, errors.New("not implemented")
}

func (q *stubQuota) OrganizationsNearQuota(ctx context.Context) ([]*model.OrganizationQuota, error) {
	return nil, errors.New("not implemented")
}

// stubSuppression is a suppression.Service backed by a fixed set.
type stubSuppression struct {
	set map[string]struct{}
}

func (s *stubSuppression) IsSuppressed(ctx context.Context, orgID, addr string) (bool, error) {
	_, ok := s.set[addr]
	return ok, nil
}

func (s *stubSuppression) GetSuppressedEmails(ctx context.Context, orgID string, emails []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, e := range emails {
		if _, ok := s.set[e]; ok {
			out[e] = struct{}{}
		}
	}
	return out, nil
}

func (s *stubSuppression) Add(ctx context.Context, orgID, addr string, sType model.SuppressionType, reason string, campaignID *uuid.UUID) (*model.Suppression, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSuppression) BulkSuppress(ctx context.Context, orgID string, emails []string, sType model.SuppressionType, reason string, campaignID *uuid.UUID) (int, error) {
	return 0, errors.New("not implemented")
}

func (s *stubSuppression) Remove(ctx context.Context, orgID, addr string) error {
	return errors.New("not implemented")
}

func (s *stubSuppression) List(ctx context.Context, orgID string, p model.Pagination) ([]*model.Suppression, int, error) {
	return nil, 0, errors.New("not implemented")
}

func (s *stubSuppression) Stats(ctx context.Context, orgID string) (*model.SuppressionStats, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSuppression) ProcessBounce(ctx context.Context, orgID, addr string, bounceType suppression.BounceType, reason string, campaignID *uuid.UUID) error {
	return errors.New("not implemented")
}

func (s *stubSuppression) ProcessComplaint(ctx context.Context, orgID, addr, reason string, campaignID *uuid.UUID) error {
	return errors.New("not implemented")
}

func (s *stubSuppression) FilterSuppressed(ctx context.Context, orgID string, emails []string) ([]string, []string, error) {
	return nil, nil, errors.New("not implemented")
}

func testCampaign(status model.CampaignStatus) *model.Campaign {
	c := &model.Campaign{
		OrganizationID:     "org_123",
		Name:               "Spring outreach",
		Subject:            "Grow your business",
		SenderName:         "Alex",
		SenderEmail:        "alex@example.com",
		ServiceDescription: "Web design for trades businesses",
		Tone:               model.ToneProfessional,
		Status:             status,
	}
	c.ID = uuid.New()
	return c
}

func testEvent(c *model.Campaign) model.CampaignEvent {
	return model.CampaignEvent{CampaignID: c.ID, OrganizationID: c.OrganizationID}
}

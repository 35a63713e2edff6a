package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/auth"
)

type sendFixture struct {
	w         *SendWorkflow
	store     *fakeCampaignStore
	events    *fakeEventStore
	quota     *stubQuota
	transport *stubTransport
	pub       *stubPublisher
}

func newSendFixture(campaign *model.Campaign, suppressedSet map[string]struct{}, cfg Config) *sendFixture {
	f := &sendFixture{
		store:     newFakeCampaignStore(campaign),
		events:    &fakeEventStore{},
		quota:     &stubQuota{allowed: true},
		transport: &stubTransport{failFor: map[string]bool{}},
		pub:       &stubPublisher{},
	}
	tokens := auth.NewTokenService("test-secret", time.Hour)
	f.w = NewSendWorkflow(f.store, f.events, f.quota, &stubSuppression{set: suppressedSet},
		f.transport, tokens, f.pub, testLogger, testMetrics, cfg)
	f.w.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func TestSendWorkflow_TransportFailureIsolatedToItem(t *testing.T) {
	campaign := testCampaign(model.CampaignStatusReady)
	f := newSendFixture(campaign, nil, Config{})
	f.transport.failFor["bad@biz.test"] = true

	a := f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "a@biz.test"}, "Hi", "<body>x</body>")
	b := f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "bad@biz.test"}, "Hi", "<body>x</body>")
	c := f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "c@biz.test"}, "Hi", "<body>x</body>")

	err := f.w.Run(context.Background(), testEvent(campaign))
	require.NoError(t, err)

	assert.Equal(t, model.ItemStatusSent, f.store.itemStatus(a))
	assert.Equal(t, model.ItemStatusFailed, f.store.itemStatus(b))
	assert.Equal(t, model.ItemStatusSent, f.store.itemStatus(c))
	assert.Equal(t, 2, f.store.campaign.SentCount)
	assert.Equal(t, 2, f.quota.incremented, "quota counts only confirmed dispatches")
	assert.Equal(t, model.CampaignStatusSending, f.store.campaign.Status)
	assert.Equal(t, []string{model.TopicSendBatch}, f.pub.topics)
	assert.Equal(t, 2, f.events.countByType(model.EmailEventSent))
}

func TestSendWorkflow_SuppressedSkipsTransportAndQuota(t *testing.T) {
	campaign := testCampaign(model.CampaignStatusReady)
	f := newSendFixture(campaign, map[string]struct{}{"opted-out@biz.test": {}}, Config{})

	ok := f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "fresh@biz.test"}, "Hi", "<body>x</body>")
	skip := f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "opted-out@biz.test"}, "Hi", "<body>x</body>")

	err := f.w.Run(context.Background(), testEvent(campaign))
	require.NoError(t, err)

	assert.Equal(t, model.ItemStatusSent, f.store.itemStatus(ok))
	assert.Equal(t, model.ItemStatusSuppressed, f.store.itemStatus(skip))
	assert.Equal(t, []string{"fresh@biz.test"}, f.transport.sentTo())
	assert.Equal(t, 1, f.quota.incremented, "suppressed recipients never consume quota")
	assert.Equal(t, 1, f.events.countByType(model.EmailEventSuppressed))
}

func TestSendWorkflow_QuotaRejectionHaltsBatch(t *testing.T) {
	campaign := testCampaign(model.CampaignStatusReady)
	f := newSendFixture(campaign, nil, Config{})
	f.quota.allowed = false
	f.quota.reason = "monthly quota exceeded"

	id := f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "a@biz.test"}, "Hi", "<body>x</body>")

	err := f.w.Run(context.Background(), testEvent(campaign))
	require.Error(t, err)

	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Contains(t, qe.Reason, "quota exceeded")
	assert.True(t, IsTerminal(err))

	assert.Equal(t, model.ItemStatusGenerated, f.store.itemStatus(id), "items stay untouched")
	assert.Empty(t, f.transport.sentTo())
	assert.Equal(t, 0, f.quota.incremented)
	assert.Equal(t, model.CampaignStatusReady, f.store.campaign.Status)
	assert.Empty(t, f.pub.topics)
}

func TestSendWorkflow_QuotaReadErrorFailsClosed(t *testing.T) {
	campaign := testCampaign(model.CampaignStatusReady)
	f := newSendFixture(campaign, nil, Config{})
	f.quota.checkErr = errors.New("ledger unavailable")

	f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "a@biz.test"}, "Hi", "<body>x</body>")

	err := f.w.Run(context.Background(), testEvent(campaign))
	require.Error(t, err)
	assert.False(t, IsTerminal(err), "infrastructure errors are retryable")
	assert.Empty(t, f.transport.sentTo())
}

func TestSendWorkflow_CompletionMarksSent(t *testing.T) {
	campaign := testCampaign(model.CampaignStatusSending)
	campaign.TotalRecipients = 5
	f := newSendFixture(campaign, nil, Config{})

	err := f.w.Run(context.Background(), testEvent(campaign))
	require.NoError(t, err)

	assert.Equal(t, model.CampaignStatusSent, f.store.campaign.Status)
	assert.Equal(t, 5, f.store.campaign.SentCount)
	assert.Empty(t, f.pub.topics, "completed campaigns are not rescheduled")
}

func TestSendWorkflow_RejectsInvalidStatus(t *testing.T) {
	campaign := testCampaign(model.CampaignStatusDraft)
	f := newSendFixture(campaign, nil, Config{})

	err := f.w.Run(context.Background(), testEvent(campaign))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	assert.True(t, IsTerminal(err))
}

func TestSendWorkflow_OutgoingEmailCarriesUnsubscribeLink(t *testing.T) {
	campaign := testCampaign(model.CampaignStatusReady)
	f := newSendFixture(campaign, nil, Config{AppBaseURL: "https://app.example.com"})

	f.store.addItem(model.ItemStatusGenerated, model.Recipient{Email: "a@biz.test"}, "Hi", "<html><body><p>Pitch</p></body></html>")

	err := f.w.Run(context.Background(), testEvent(campaign))
	require.NoError(t, err)

	require.Len(t, f.transport.sent, 1)
	msg := f.transport.sent[0]
	assert.Equal(t, campaign.SenderName, msg.FromName)
	assert.Equal(t, campaign.SenderEmail, msg.FromEmail)
	assert.Contains(t, msg.HTML, "https://app.example.com/unsubscribe/")
	unsubIdx := strings.Index(msg.HTML, "/unsubscribe/")
	bodyEnd := strings.Index(msg.HTML, "</body>")
	assert.Less(t, unsubIdx, bodyEnd, "footer is inserted inside the body")
}

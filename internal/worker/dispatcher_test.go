package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/workflow"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "worker")

type chanBroker struct {
	mu     sync.Mutex
	topics map[string]chan []byte
}

func newChanBroker() *chanBroker {
	return &chanBroker{topics: make(map[string]chan []byte)}
}

func (b *chanBroker) channel(topic string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[topic]
	if !ok {
		ch = make(chan []byte, 16)
		b.topics[topic] = ch
	}
	return ch
}

func (b *chanBroker) Publish(ctx context.Context, topic string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.channel(topic) <- payload
	return nil
}

func (b *chanBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	return b.channel(topic), nil
}

func (b *chanBroker) Close() error { return nil }

func testEvent() model.CampaignEvent {
	return model.CampaignEvent{CampaignID: uuid.New(), OrganizationID: "org_123"}
}

func TestDispatcher_RoutesEventToHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := newChanBroker()
	d := NewDispatcher(broker, logger.NewLogger(nil), testMetrics, 3, time.Millisecond)

	received := make(chan model.CampaignEvent, 1)
	d.Register(model.TopicGenerateEmails, func(ctx context.Context, event model.CampaignEvent) error {
		received <- event
		return nil
	})
	require.NoError(t, d.Start(ctx))

	want := testEvent()
	require.NoError(t, broker.Publish(ctx, model.TopicGenerateEmails, want))

	select {
	case got := <-received:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestDispatcher_RetriesTransientErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := newChanBroker()
	d := NewDispatcher(broker, logger.NewLogger(nil), testMetrics, 3, time.Millisecond)

	var calls int32
	done := make(chan struct{})
	d.Register(model.TopicSendBatch, func(ctx context.Context, event model.CampaignEvent) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("broker hiccup")
		}
		close(done)
		return nil
	})
	require.NoError(t, d.Start(ctx))
	require.NoError(t, broker.Publish(ctx, model.TopicSendBatch, testEvent()))

	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	case <-time.After(time.Second):
		t.Fatal("handler never succeeded")
	}
}

func TestDispatcher_DoesNotRetryTerminalErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := newChanBroker()
	d := NewDispatcher(broker, logger.NewLogger(nil), testMetrics, 5, time.Millisecond)

	var calls int32
	invoked := make(chan struct{}, 8)
	d.Register(model.TopicSendBatch, func(ctx context.Context, event model.CampaignEvent) error {
		atomic.AddInt32(&calls, 1)
		invoked <- struct{}{}
		return fmt.Errorf("%w: gone", workflow.ErrCampaignNotFound)
	})
	require.NoError(t, d.Start(ctx))
	require.NoError(t, broker.Publish(ctx, model.TopicSendBatch, testEvent()))

	select {
	case <-invoked:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	// Give any (incorrect) retry a chance to fire before asserting.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatcher_HandlesEventsOnOneTopicConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := newChanBroker()
	d := NewDispatcher(broker, logger.NewLogger(nil), testMetrics, 3, time.Millisecond)

	started := make(chan string, 2)
	release := make(chan struct{})
	d.Register(model.TopicSendBatch, func(ctx context.Context, event model.CampaignEvent) error {
		started <- event.OrganizationID
		<-release
		return nil
	})
	require.NoError(t, d.Start(ctx))

	require.NoError(t, broker.Publish(ctx, model.TopicSendBatch,
		model.CampaignEvent{CampaignID: uuid.New(), OrganizationID: "org_a"}))
	require.NoError(t, broker.Publish(ctx, model.TopicSendBatch,
		model.CampaignEvent{CampaignID: uuid.New(), OrganizationID: "org_b"}))

	// Both handlers must be in flight before either is released; a dispatcher
	// that drains the topic serially never starts the second one here.
	orgs := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case org := <-started:
			orgs[org] = true
		case <-time.After(time.Second):
			t.Fatalf("only %d of 2 handlers started", i)
		}
	}
	close(release)
	assert.True(t, orgs["org_a"])
	assert.True(t, orgs["org_b"])
}

func TestDispatcher_DropsMalformedPayloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := newChanBroker()
	d := NewDispatcher(broker, logger.NewLogger(nil), testMetrics, 3, time.Millisecond)

	var calls int32
	d.Register(model.TopicGenerateEmails, func(ctx context.Context, event model.CampaignEvent) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, d.Start(ctx))

	broker.channel(model.TopicGenerateEmails) <- []byte("{not json")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

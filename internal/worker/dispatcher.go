package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/workflow"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/messaging"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

// Handler runs one workflow invocation for a campaign event.
type Handler func(ctx context.Context, event model.CampaignEvent) error

// Dispatcher consumes campaign events from the broker and routes each topic
// to its registered workflow. Every event is handled in its own goroutine, so
// a long-running batch for one campaign never delays other campaigns on the
// same topic. Transient handler errors are retried with backoff; terminal
// errors drop the event so a poisoned campaign cannot wedge the topic.
type Dispatcher struct {
	broker       messaging.Broker
	logger       *logger.Logger
	metrics      *metrics.Metrics
	handlers     map[string]Handler
	maxRetries   int
	retryBackoff time.Duration
	wg           sync.WaitGroup
}

func NewDispatcher(broker messaging.Broker, log *logger.Logger, m *metrics.Metrics, maxRetries int, retryBackoff time.Duration) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}
	return &Dispatcher{
		broker:       broker,
		logger:       log,
		metrics:      m,
		handlers:     make(map[string]Handler),
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
	}
}

// Register binds a topic to a handler. Must be called before Start.
func (d *Dispatcher) Register(topic string, h Handler) {
	d.handlers[topic] = h
}

// Start subscribes to every registered topic and consumes until the context
// is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	for topic, handler := range d.handlers {
		ch, err := d.broker.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		d.wg.Add(1)
		go d.consume(ctx, topic, ch, handler)
		d.logger.Info("subscribed to topic", "topic", topic)
	}
	return nil
}

// Wait blocks until all consume loops and in-flight handlers have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) consume(ctx context.Context, topic string, ch <-chan []byte, handler Handler) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				d.logger.Warn("subscription channel closed", "topic", topic)
				return
			}
			d.wg.Add(1)
			go func(p []byte) {
				defer d.wg.Done()
				d.process(ctx, topic, p, handler)
			}(payload)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, topic string, payload []byte, handler Handler) {
	var event model.CampaignEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.metrics.EventsFailed.WithLabelValues(topic).Inc()
		d.logger.Error(err, "dropping malformed event", "topic", topic)
		return
	}

	log := d.logger.WithFields(map[string]interface{}{
		"topic":           topic,
		"campaign_id":     event.CampaignID.String(),
		"organization_id": event.OrganizationID,
	})

	var err error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err = handler(ctx, event)
		if err == nil {
			d.metrics.EventsProcessed.WithLabelValues(topic).Inc()
			return
		}
		if workflow.IsTerminal(err) {
			d.metrics.EventsFailed.WithLabelValues(topic).Inc()
			log.Warn("dropping event after terminal error", "error", err.Error())
			return
		}
		if attempt < d.maxRetries {
			log.Warn("event handling failed, retrying",
				"attempt", attempt, "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.retryBackoff * time.Duration(attempt)):
			}
		}
	}

	d.metrics.EventsFailed.WithLabelValues(topic).Inc()
	log.Error(err, "event handling failed after retries", "attempts", d.maxRetries)
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Broker topics the campaign workflows react to.
const (
	TopicGenerateEmails = "campaign/generate-emails"
	TopicSendBatch      = "campaign/send-batch"
)

// CampaignEvent is the payload of both workflow trigger topics.
type CampaignEvent struct {
	CampaignID     uuid.UUID `json:"campaign_id"`
	OrganizationID string    `json:"organization_id"`
}

type EmailEventType string

const (
	EmailEventSent       EmailEventType = "sent"
	EmailEventDelivered  EmailEventType = "delivered"
	EmailEventOpened     EmailEventType = "opened"
	EmailEventClicked    EmailEventType = "clicked"
	EmailEventBounced    EmailEventType = "bounced"
	EmailEventComplained EmailEventType = "complained"
	EmailEventSuppressed EmailEventType = "suppressed"
)

// EmailEvent is one tracking row written by the send workflow and the
// provider webhook; the analytics dashboard reads these out of scope.
type EmailEvent struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	CampaignID     uuid.UUID      `json:"campaign_id" db:"campaign_id"`
	CampaignItemID uuid.UUID      `json:"campaign_item_id" db:"campaign_item_id"`
	EventType      EmailEventType `json:"event_type" db:"event_type"`
	EventData      JSONMap        `json:"event_data,omitempty" db:"event_data"`
	OccurredAt     time.Time      `json:"occurred_at" db:"occurred_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

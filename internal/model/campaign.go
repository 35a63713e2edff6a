package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignStatusDraft      CampaignStatus = "draft"
	CampaignStatusGenerating CampaignStatus = "generating"
	CampaignStatusReady      CampaignStatus = "ready"
	CampaignStatusSending    CampaignStatus = "sending"
	CampaignStatusSent       CampaignStatus = "sent"
	CampaignStatusFailed     CampaignStatus = "failed"
)

type CampaignItemStatus string

const (
	ItemStatusPending    CampaignItemStatus = "pending"
	ItemStatusGenerated  CampaignItemStatus = "generated"
	ItemStatusSent       CampaignItemStatus = "sent"
	ItemStatusFailed     CampaignItemStatus = "failed"
	ItemStatusSuppressed CampaignItemStatus = "suppressed"
)

type CampaignTone string

const (
	ToneProfessional CampaignTone = "professional"
	ToneFriendly     CampaignTone = "friendly"
	ToneCasual       CampaignTone = "casual"
)

// Campaign is one outreach effort owned by an organization.
type Campaign struct {
	Base
	OrganizationID     string         `json:"organization_id" db:"organization_id"`
	Name               string         `json:"name" db:"name"`
	Subject            string         `json:"subject" db:"subject"`
	SenderName         string         `json:"sender_name" db:"sender_name"`
	SenderEmail        string         `json:"sender_email" db:"sender_email"`
	ServiceDescription string         `json:"service_description" db:"service_description"`
	Tone               CampaignTone   `json:"tone" db:"tone"`
	Status             CampaignStatus `json:"status" db:"status"`
	TotalRecipients    int            `json:"total_recipients" db:"total_recipients"`
	SentCount          int            `json:"sent_count" db:"sent_count"`
	GeneratedCount     int            `json:"generated_count" db:"generated_count"`
	FailedCount        int            `json:"failed_count" db:"failed_count"`
}

// ManualRecipient is the metadata blob stored on items created without a
// directory business reference.
type ManualRecipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (m *ManualRecipient) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *ManualRecipient) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type %T for ManualRecipient", src)
	}
}

// CampaignItem is one recipient's generation/send record within a campaign.
type CampaignItem struct {
	Base
	CampaignID   uuid.UUID          `json:"campaign_id" db:"campaign_id"`
	BusinessID   *uuid.UUID         `json:"business_id,omitempty" db:"business_id"`
	EmailSubject *string            `json:"email_subject,omitempty" db:"email_subject"`
	EmailContent *string            `json:"email_content,omitempty" db:"email_content"`
	Status       CampaignItemStatus `json:"status" db:"status"`
	SentAt       *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	ErrorMessage *string            `json:"error_message,omitempty" db:"error_message"`
	MessageID    *string            `json:"message_id,omitempty" db:"message_id"`
	Metadata     *ManualRecipient   `json:"metadata,omitempty" db:"metadata"`
}

// Recipient is the uniform shape both workflows consume, resolved at
// batch-fetch time from either a directory business or manual metadata.
type Recipient struct {
	Name        string `json:"name" db:"name"`
	Email       string `json:"email" db:"email"`
	Industry    string `json:"industry" db:"industry"`
	Description string `json:"description" db:"description"`
	City        string `json:"city" db:"city"`
}

// GenerationItem is one pending item joined with its resolved recipient.
type GenerationItem struct {
	ID        uuid.UUID `db:"id"`
	Recipient Recipient
}

// SendItem is one generated item ready for dispatch.
type SendItem struct {
	ID        uuid.UUID `db:"id"`
	Subject   string    `db:"email_subject"`
	Body      string    `db:"email_content"`
	Recipient Recipient
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type SuppressionType string

const (
	SuppressionUnsubscribed SuppressionType = "unsubscribed"
	SuppressionBounced      SuppressionType = "bounced"
	SuppressionComplained   SuppressionType = "complained"
)

// Suppression is one (tenant, email) exclusion. Rows are append-only from
// the workflows' perspective; inserts are idempotent on (org, email).
type Suppression struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	Email          string          `json:"email" db:"email"`
	Type           SuppressionType `json:"type" db:"type"`
	Reason         *string         `json:"reason,omitempty" db:"reason"`
	CampaignID     *uuid.UUID      `json:"campaign_id,omitempty" db:"campaign_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// SuppressionStats summarizes a tenant's suppression list for reporting.
type SuppressionStats struct {
	Total  int                     `json:"total"`
	ByType map[SuppressionType]int `json:"by_type"`
}

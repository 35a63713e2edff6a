package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
)

type emailEventRepository struct {
	BaseRepository
}

func NewEmailEventRepository(base BaseRepository) repository.EmailEventRepository {
	return &emailEventRepository{base}
}

func (r *emailEventRepository) Insert(ctx context.Context, event *model.EmailEvent) error {
	query := `
		INSERT INTO email_events (
			id, organization_id, campaign_id, campaign_item_id,
			event_type, event_data, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = event.CreatedAt
	}

	_, err := r.exec(ctx, "email_event.insert", query,
		event.ID,
		event.OrganizationID,
		event.CampaignID,
		event.CampaignItemID,
		event.EventType,
		event.EventData,
		event.OccurredAt,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert email event: %w", err)
	}
	return nil
}

func (r *emailEventRepository) ListForCampaign(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.EmailEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT * FROM email_events
		WHERE organization_id = $1 AND campaign_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`
	var events []*model.EmailEvent
	if err := r.selectAll(ctx, "email_event.list", &events, query, orgID, campaignID, limit); err != nil {
		return nil, fmt.Errorf("failed to list email events: %w", err)
	}
	return events, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
)

type campaignRepository struct {
	BaseRepository
}

func NewCampaignRepository(base BaseRepository) repository.CampaignRepository {
	return &campaignRepository{base}
}

func (r *campaignRepository) Create(ctx context.Context, campaign *model.Campaign, items []*model.CampaignItem) error {
	campaignQuery := `
		INSERT INTO campaigns (
			id, organization_id, name, subject, sender_name, sender_email,
			service_description, tone, status, total_recipients,
			sent_count, generated_count, failed_count, created_at, updated_at
		) VALUES (
			:id, :organization_id, :name, :subject, :sender_name, :sender_email,
			:service_description, :tone, :status, :total_recipients,
			:sent_count, :generated_count, :failed_count, :created_at, :updated_at
		)
	`
	itemQuery := `
		INSERT INTO campaign_items (
			id, campaign_id, business_id, status, metadata, created_at, updated_at
		) VALUES (
			:id, :campaign_id, :business_id, :status, :metadata, :created_at, :updated_at
		)
	`

	now := time.Now()
	campaign.ID = uuid.New()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	campaign.Status = model.CampaignStatusDraft
	campaign.TotalRecipients = len(items)

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, campaignQuery, campaign); err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}

		for _, item := range items {
			item.ID = uuid.New()
			item.CampaignID = campaign.ID
			item.Status = model.ItemStatusPending
			item.CreatedAt = now
			item.UpdatedAt = now
		}

		if len(items) > 0 {
			if _, err := tx.NamedExecContext(ctx, itemQuery, items); err != nil {
				return fmt.Errorf("failed to create campaign items: %w", err)
			}
		}
		return nil
	})
	r.observe("campaign.create", err)
	return err
}

func (r *campaignRepository) Get(ctx context.Context, orgID string, id uuid.UUID) (*model.Campaign, error) {
	query := `
		SELECT * FROM campaigns
		WHERE id = $1 AND organization_id = $2
	`
	var campaign model.Campaign
	if err := r.get(ctx, "campaign.get", &campaign, query, id, orgID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

func (r *campaignRepository) List(ctx context.Context, orgID string) ([]*model.Campaign, error) {
	query := `
		SELECT * FROM campaigns
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	var campaigns []*model.Campaign
	if err := r.selectAll(ctx, "campaign.list", &campaigns, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// UpdateStatus moves a campaign to a new status only when its current status
// is one of the expected prior statuses. Returns false when no row matched,
// which callers treat as a state conflict rather than an error.
func (r *campaignRepository) UpdateStatus(ctx context.Context, orgID string, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = ?, updated_at = NOW()
		WHERE id = ? AND organization_id = ? AND status IN (?)
	`
	query, args, err := sqlx.In(query, to, id, orgID, from)
	if err != nil {
		return false, fmt.Errorf("failed to build status update: %w", err)
	}

	result, err := r.exec(ctx, "campaign.update_status", r.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *campaignRepository) AddSentCount(ctx context.Context, orgID string, id uuid.UUID, n int) error {
	query := `
		UPDATE campaigns
		SET sent_count = sent_count + $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3
	`
	_, err := r.exec(ctx, "campaign.add_sent_count", query, n, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to add sent count: %w", err)
	}
	return nil
}

func (r *campaignRepository) SetSentCountToTotal(ctx context.Context, orgID string, id uuid.UUID) error {
	query := `
		UPDATE campaigns
		SET sent_count = total_recipients, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`
	_, err := r.exec(ctx, "campaign.finalize_sent_count", query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to finalize sent count: %w", err)
	}
	return nil
}

func (r *campaignRepository) AddGenerationCounts(ctx context.Context, orgID string, id uuid.UUID, generated, failed int) error {
	query := `
		UPDATE campaigns
		SET generated_count = generated_count + $1,
			failed_count = failed_count + $2,
			updated_at = NOW()
		WHERE id = $3 AND organization_id = $4
	`
	_, err := r.exec(ctx, "campaign.add_generation_counts", query, generated, failed, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to add generation counts: %w", err)
	}
	return nil
}

// itemRow is the flat scan target for batch fetches; the recipient is
// resolved in SQL from the directory business or the manual metadata blob.
type itemRow struct {
	ID          uuid.UUID `db:"id"`
	Subject     string    `db:"email_subject"`
	Body        string    `db:"email_content"`
	Name        string    `db:"name"`
	Email       string    `db:"email"`
	Industry    string    `db:"industry"`
	Description string    `db:"description"`
	City        string    `db:"city"`
}

func (row *itemRow) recipient() model.Recipient {
	return model.Recipient{
		Name:        row.Name,
		Email:       row.Email,
		Industry:    row.Industry,
		Description: row.Description,
		City:        row.City,
	}
}

const itemRecipientColumns = `
	COALESCE(b.name, ci.metadata->>'name', '') AS name,
	LOWER(COALESCE(b.email, ci.metadata->>'email', '')) AS email,
	COALESCE(b.industry, '') AS industry,
	COALESCE(b.description, '') AS description,
	COALESCE(b.city, '') AS city
`

func (r *campaignRepository) FetchPendingItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.GenerationItem, error) {
	query := `
		SELECT ci.id, '' AS email_subject, '' AS email_content, ` + itemRecipientColumns + `
		FROM campaign_items ci
		JOIN campaigns c ON c.id = ci.campaign_id
		LEFT JOIN businesses b ON b.id = ci.business_id
		WHERE ci.campaign_id = $1
			AND c.organization_id = $2
			AND ci.status = $3
		ORDER BY ci.created_at
		LIMIT $4
	`
	var rows []itemRow
	if err := r.selectAll(ctx, "campaign.fetch_pending_items", &rows, query, campaignID, orgID, model.ItemStatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch pending items: %w", err)
	}

	items := make([]*model.GenerationItem, 0, len(rows))
	for i := range rows {
		items = append(items, &model.GenerationItem{
			ID:        rows[i].ID,
			Recipient: rows[i].recipient(),
		})
	}
	return items, nil
}

func (r *campaignRepository) FetchGeneratedItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.SendItem, error) {
	query := `
		SELECT ci.id,
			COALESCE(ci.email_subject, '') AS email_subject,
			COALESCE(ci.email_content, '') AS email_content, ` + itemRecipientColumns + `
		FROM campaign_items ci
		JOIN campaigns c ON c.id = ci.campaign_id
		LEFT JOIN businesses b ON b.id = ci.business_id
		WHERE ci.campaign_id = $1
			AND c.organization_id = $2
			AND ci.status = $3
		ORDER BY ci.created_at
		LIMIT $4
	`
	var rows []itemRow
	if err := r.selectAll(ctx, "campaign.fetch_generated_items", &rows, query, campaignID, orgID, model.ItemStatusGenerated, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch generated items: %w", err)
	}

	items := make([]*model.SendItem, 0, len(rows))
	for i := range rows {
		items = append(items, &model.SendItem{
			ID:        rows[i].ID,
			Subject:   rows[i].Subject,
			Body:      rows[i].Body,
			Recipient: rows[i].recipient(),
		})
	}
	return items, nil
}

func (r *campaignRepository) CountItemsByStatus(ctx context.Context, orgID string, campaignID uuid.UUID, status model.CampaignItemStatus) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM campaign_items ci
		JOIN campaigns c ON c.id = ci.campaign_id
		WHERE ci.campaign_id = $1 AND c.organization_id = $2 AND ci.status = $3
	`
	var count int
	if err := r.get(ctx, "campaign.count_items", &count, query, campaignID, orgID, status); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func (r *campaignRepository) MarkItemGenerated(ctx context.Context, itemID uuid.UUID, subject, body string) (bool, error) {
	query := `
		UPDATE campaign_items
		SET status = $1, email_subject = $2, email_content = $3, error_message = NULL, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	return r.execGuarded(ctx, "campaign.mark_item_generated", query, model.ItemStatusGenerated, subject, body, itemID, model.ItemStatusPending)
}

func (r *campaignRepository) MarkItemFailed(ctx context.Context, itemID uuid.UUID, from model.CampaignItemStatus, message string) (bool, error) {
	query := `
		UPDATE campaign_items
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	return r.execGuarded(ctx, "campaign.mark_item_failed", query, model.ItemStatusFailed, message, itemID, from)
}

func (r *campaignRepository) MarkItemSent(ctx context.Context, itemID uuid.UUID, messageID string, sentAt time.Time) (bool, error) {
	query := `
		UPDATE campaign_items
		SET status = $1, message_id = $2, sent_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	return r.execGuarded(ctx, "campaign.mark_item_sent", query, model.ItemStatusSent, messageID, sentAt, itemID, model.ItemStatusGenerated)
}

func (r *campaignRepository) MarkItemSuppressed(ctx context.Context, itemID uuid.UUID) (bool, error) {
	query := `
		UPDATE campaign_items
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	return r.execGuarded(ctx, "campaign.mark_item_suppressed", query, model.ItemStatusSuppressed, itemID, model.ItemStatusGenerated)
}

func (r *campaignRepository) ResolveItemEmail(ctx context.Context, orgID string, itemID uuid.UUID) (string, uuid.UUID, error) {
	query := `
		SELECT LOWER(COALESCE(b.email, ci.metadata->>'email', '')) AS email, ci.campaign_id
		FROM campaign_items ci
		JOIN campaigns c ON c.id = ci.campaign_id
		LEFT JOIN businesses b ON b.id = ci.business_id
		WHERE ci.id = $1 AND c.organization_id = $2
	`
	var row struct {
		Email      string    `db:"email"`
		CampaignID uuid.UUID `db:"campaign_id"`
	}
	if err := r.get(ctx, "campaign.resolve_item_email", &row, query, itemID, orgID); err != nil {
		if err == sql.ErrNoRows {
			return "", uuid.Nil, nil
		}
		return "", uuid.Nil, fmt.Errorf("failed to resolve item email: %w", err)
	}
	return row.Email, row.CampaignID, nil
}

func (r *campaignRepository) execGuarded(ctx context.Context, operation, query string, args ...interface{}) (bool, error) {
	result, err := r.exec(ctx, operation, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

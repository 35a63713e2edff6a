package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
)

// CampaignRepository covers campaigns and their items. Every read and write
// on tenant-scoped rows carries the organization id; item-level status
// transitions are guarded by the expected prior status so overlapping
// workflow invocations skip rows another invocation already moved.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *model.Campaign, items []*model.CampaignItem) error
	Get(ctx context.Context, orgID string, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context, orgID string) ([]*model.Campaign, error)
	UpdateStatus(ctx context.Context, orgID string, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	AddSentCount(ctx context.Context, orgID string, id uuid.UUID, n int) error
	SetSentCountToTotal(ctx context.Context, orgID string, id uuid.UUID) error
	AddGenerationCounts(ctx context.Context, orgID string, id uuid.UUID, generated, failed int) error

	FetchPendingItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.GenerationItem, error)
	FetchGeneratedItems(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.SendItem, error)
	CountItemsByStatus(ctx context.Context, orgID string, campaignID uuid.UUID, status model.CampaignItemStatus) (int, error)
	MarkItemGenerated(ctx context.Context, itemID uuid.UUID, subject, body string) (bool, error)
	MarkItemFailed(ctx context.Context, itemID uuid.UUID, from model.CampaignItemStatus, message string) (bool, error)
	MarkItemSent(ctx context.Context, itemID uuid.UUID, messageID string, sentAt time.Time) (bool, error)
	MarkItemSuppressed(ctx context.Context, itemID uuid.UUID) (bool, error)
	ResolveItemEmail(ctx context.Context, orgID string, itemID uuid.UUID) (string, uuid.UUID, error)
}

// QuotaRepository persists the per-tenant monthly ledger. IncrementUsed must
// be an atomic storage-level add.
type QuotaRepository interface {
	Get(ctx context.Context, orgID string) (*model.OrganizationQuota, error)
	CreateDefault(ctx context.Context, orgID string, monthlyQuota int, reset time.Time) error
	ResetIfDue(ctx context.Context, orgID string, now, nextReset time.Time) error
	IncrementUsed(ctx context.Context, orgID string, n int) error
	SetMonthlyQuota(ctx context.Context, orgID string, limit int) error
	ResetAllDue(ctx context.Context, now, nextReset time.Time) (int64, error)
	ListNearThreshold(ctx context.Context, threshold float64) ([]*model.OrganizationQuota, error)
}

// SuppressionRepository persists the per-tenant exclusion set. Insert and
// BulkInsert are insert-or-ignore on (organization_id, email).
type SuppressionRepository interface {
	Insert(ctx context.Context, record *model.Suppression) (bool, error)
	BulkInsert(ctx context.Context, records []*model.Suppression) (int, error)
	Get(ctx context.Context, orgID, email string) (*model.Suppression, error)
	GetByEmails(ctx context.Context, orgID string, emails []string) ([]string, error)
	Delete(ctx context.Context, orgID, email string) error
	List(ctx context.Context, orgID string, p model.Pagination) ([]*model.Suppression, int, error)
	CountByType(ctx context.Context, orgID string) (map[model.SuppressionType]int, error)
}

// BusinessFilter narrows directory listings.
type BusinessFilter struct {
	City     string
	Industry string
	Search   string
	model.Pagination
}

// BusinessRepository reads the shared business directory.
type BusinessRepository interface {
	List(ctx context.Context, f BusinessFilter) ([]*model.Business, int, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Business, error)
}

// EmailEventRepository stores delivery tracking rows.
type EmailEventRepository interface {
	Insert(ctx context.Context, event *model.EmailEvent) error
	ListForCampaign(ctx context.Context, orgID string, campaignID uuid.UUID, limit int) ([]*model.EmailEvent, error)
}

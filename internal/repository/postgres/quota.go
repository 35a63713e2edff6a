package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
)

type quotaRepository struct {
	BaseRepository
}

func NewQuotaRepository(base BaseRepository) repository.QuotaRepository {
	return &quotaRepository{base}
}

func (r *quotaRepository) Get(ctx context.Context, orgID string) (*model.OrganizationQuota, error) {
	query := `
		SELECT * FROM organization_quotas
		WHERE organization_id = $1
	`
	var quota model.OrganizationQuota
	if err := r.get(ctx, "quota.get", &quota, query, orgID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return &quota, nil
}

// CreateDefault lazily provisions a tenant's ledger. A concurrent creator
// wins silently via the unique constraint on organization_id.
func (r *quotaRepository) CreateDefault(ctx context.Context, orgID string, monthlyQuota int, reset time.Time) error {
	query := `
		INSERT INTO organization_quotas (
			id, organization_id, monthly_quota, monthly_used, monthly_reset, created_at, updated_at
		) VALUES ($1, $2, $3, 0, $4, NOW(), NOW())
		ON CONFLICT (organization_id) DO NOTHING
	`
	_, err := r.exec(ctx, "quota.create_default", query, uuid.New(), orgID, monthlyQuota, reset)
	if err != nil {
		return fmt.Errorf("failed to create default quota: %w", err)
	}
	return nil
}

// ResetIfDue performs the self-healing period rollover in a single statement:
// only a row whose reset timestamp has passed is touched.
func (r *quotaRepository) ResetIfDue(ctx context.Context, orgID string, now, nextReset time.Time) error {
	query := `
		UPDATE organization_quotas
		SET monthly_used = 0, monthly_reset = $1, updated_at = NOW()
		WHERE organization_id = $2 AND monthly_reset <= $3
	`
	_, err := r.exec(ctx, "quota.reset_if_due", query, nextReset, orgID, now)
	if err != nil {
		return fmt.Errorf("failed to reset quota period: %w", err)
	}
	return nil
}

// IncrementUsed is an atomic storage-level add, safe under concurrent
// same-tenant workflow invocations.
func (r *quotaRepository) IncrementUsed(ctx context.Context, orgID string, n int) error {
	query := `
		UPDATE organization_quotas
		SET monthly_used = monthly_used + $1, updated_at = NOW()
		WHERE organization_id = $2
	`
	result, err := r.exec(ctx, "quota.increment_used", query, n, orgID)
	if err != nil {
		return fmt.Errorf("failed to increment quota usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("quota record not found for organization %s", orgID)
	}
	return nil
}

func (r *quotaRepository) SetMonthlyQuota(ctx context.Context, orgID string, limit int) error {
	query := `
		UPDATE organization_quotas
		SET monthly_quota = $1, updated_at = NOW()
		WHERE organization_id = $2
	`
	result, err := r.exec(ctx, "quota.set_monthly_quota", query, limit, orgID)
	if err != nil {
		return fmt.Errorf("failed to update monthly quota: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("quota record not found for organization %s", orgID)
	}
	return nil
}

// ResetAllDue is the scheduled bulk variant of ResetIfDue. It is an
// optimization only; per-read rollover keeps the ledger correct without it.
func (r *quotaRepository) ResetAllDue(ctx context.Context, now, nextReset time.Time) (int64, error) {
	query := `
		UPDATE organization_quotas
		SET monthly_used = 0, monthly_reset = $1, updated_at = NOW()
		WHERE monthly_reset <= $2
	`
	result, err := r.exec(ctx, "quota.reset_all_due", query, nextReset, now)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk reset quotas: %w", err)
	}
	return result.RowsAffected()
}

func (r *quotaRepository) ListNearThreshold(ctx context.Context, threshold float64) ([]*model.OrganizationQuota, error) {
	query := `
		SELECT * FROM organization_quotas
		WHERE monthly_quota > 0
			AND monthly_used::float / monthly_quota::float >= $1
		ORDER BY monthly_used::float / monthly_quota::float DESC
	`
	var quotas []*model.OrganizationQuota
	if err := r.selectAll(ctx, "quota.list_near_threshold", &quotas, query, threshold); err != nil {
		return nil, fmt.Errorf("failed to list quotas near threshold: %w", err)
	}
	return quotas, nil
}

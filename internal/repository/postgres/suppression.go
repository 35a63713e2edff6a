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

type suppressionRepository struct {
	BaseRepository
}

func NewSuppressionRepository(base BaseRepository) repository.SuppressionRepository {
	return &suppressionRepository{base}
}

// Insert adds one suppression row, ignoring duplicates on (org, email).
// Returns true when a new row was inserted.
func (r *suppressionRepository) Insert(ctx context.Context, record *model.Suppression) (bool, error) {
	query := `
		INSERT INTO suppression_list (
			id, organization_id, email, type, reason, campaign_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, email) DO NOTHING
	`
	record.ID = uuid.New()
	record.CreatedAt = time.Now()

	result, err := r.exec(ctx, "suppression.insert", query,
		record.ID,
		record.OrganizationID,
		record.Email,
		record.Type,
		record.Reason,
		record.CampaignID,
		record.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert suppression: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *suppressionRepository) BulkInsert(ctx context.Context, records []*model.Suppression) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO suppression_list (
			id, organization_id, email, type, reason, campaign_id, created_at
		) VALUES (
			:id, :organization_id, :email, :type, :reason, :campaign_id, :created_at
		)
		ON CONFLICT (organization_id, email) DO NOTHING
	`

	now := time.Now()
	for _, record := range records {
		record.ID = uuid.New()
		record.CreatedAt = now
	}

	result, err := r.namedExec(ctx, "suppression.bulk_insert", query, records)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert suppressions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (r *suppressionRepository) Get(ctx context.Context, orgID, email string) (*model.Suppression, error) {
	query := `
		SELECT * FROM suppression_list
		WHERE organization_id = $1 AND email = $2
	`
	var record model.Suppression
	if err := r.get(ctx, "suppression.get", &record, query, orgID, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get suppression: %w", err)
	}
	return &record, nil
}

// GetByEmails returns the subset of emails present in the tenant's
// suppression list, in one round trip.
func (r *suppressionRepository) GetByEmails(ctx context.Context, orgID string, emails []string) ([]string, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	query := `
		SELECT email FROM suppression_list
		WHERE organization_id = ? AND email IN (?)
	`
	query, args, err := sqlx.In(query, orgID, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to build suppression lookup: %w", err)
	}

	var suppressed []string
	if err := r.selectAll(ctx, "suppression.get_by_emails", &suppressed, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to look up suppressed emails: %w", err)
	}
	return suppressed, nil
}

func (r *suppressionRepository) Delete(ctx context.Context, orgID, email string) error {
	query := `
		DELETE FROM suppression_list
		WHERE organization_id = $1 AND email = $2
	`
	_, err := r.exec(ctx, "suppression.delete", query, orgID, email)
	if err != nil {
		return fmt.Errorf("failed to delete suppression: %w", err)
	}
	return nil
}

func (r *suppressionRepository) List(ctx context.Context, orgID string, p model.Pagination) ([]*model.Suppression, int, error) {
	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}

	countQuery := `SELECT COUNT(*) FROM suppression_list WHERE organization_id = $1`
	var total int
	if err := r.get(ctx, "suppression.count", &total, countQuery, orgID); err != nil {
		return nil, 0, fmt.Errorf("failed to count suppressions: %w", err)
	}

	query := `
		SELECT * FROM suppression_list
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var records []*model.Suppression
	offset := (p.Page - 1) * p.PageSize
	if err := r.selectAll(ctx, "suppression.list", &records, query, orgID, p.PageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list suppressions: %w", err)
	}
	return records, total, nil
}

func (r *suppressionRepository) CountByType(ctx context.Context, orgID string) (map[model.SuppressionType]int, error) {
	query := `
		SELECT type, COUNT(*) AS count
		FROM suppression_list
		WHERE organization_id = $1
		GROUP BY type
	`
	var rows []struct {
		Type  model.SuppressionType `db:"type"`
		Count int                   `db:"count"`
	}
	if err := r.selectAll(ctx, "suppression.count_by_type", &rows, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to count suppressions by type: %w", err)
	}

	counts := map[model.SuppressionType]int{
		model.SuppressionUnsubscribed: 0,
		model.SuppressionBounced:      0,
		model.SuppressionComplained:   0,
	}
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
)

type businessRepository struct {
	BaseRepository
}

func NewBusinessRepository(base BaseRepository) repository.BusinessRepository {
	return &businessRepository{base}
}

func (r *businessRepository) List(ctx context.Context, f repository.BusinessFilter) ([]*model.Business, int, error) {
	if f.PageSize <= 0 {
		f.PageSize = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	n := 1
	if f.City != "" {
		where += fmt.Sprintf(" AND LOWER(city) = LOWER($%d)", n)
		args = append(args, f.City)
		n++
	}
	if f.Industry != "" {
		where += fmt.Sprintf(" AND LOWER(industry) = LOWER($%d)", n)
		args = append(args, f.Industry)
		n++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", n, n)
		args = append(args, "%"+f.Search+"%")
		n++
	}

	var total int
	if err := r.get(ctx, "business.count", &total, "SELECT COUNT(*) FROM businesses"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count businesses: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT * FROM businesses%s ORDER BY name LIMIT $%d OFFSET $%d",
		where, n, n+1,
	)
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	var businesses []*model.Business
	if err := r.selectAll(ctx, "business.list", &businesses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list businesses: %w", err)
	}
	return businesses, total, nil
}

func (r *businessRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Business, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT * FROM businesses WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build business lookup: %w", err)
	}

	var businesses []*model.Business
	if err := r.selectAll(ctx, "business.get_by_ids", &businesses, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get businesses: %w", err)
	}
	return businesses, nil
}

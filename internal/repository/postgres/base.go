package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	return BaseRepository{db: db, metrics: m}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// observe counts one database operation. Absent rows are a normal outcome
// for lookups, not a failure.
func (r *BaseRepository) observe(operation string, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	r.metrics.DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func (r *BaseRepository) get(ctx context.Context, operation string, dest interface{}, query string, args ...interface{}) error {
	err := r.db.GetContext(ctx, dest, query, args...)
	r.observe(operation, err)
	return err
}

func (r *BaseRepository) selectAll(ctx context.Context, operation string, dest interface{}, query string, args ...interface{}) error {
	err := r.db.SelectContext(ctx, dest, query, args...)
	r.observe(operation, err)
	return err
}

func (r *BaseRepository) exec(ctx context.Context, operation, query string, args ...interface{}) (sql.Result, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	r.observe(operation, err)
	return result, err
}

func (r *BaseRepository) namedExec(ctx context.Context, operation, query string, arg interface{}) (sql.Result, error) {
	result, err := r.db.NamedExecContext(ctx, query, arg)
	r.observe(operation, err)
	return result, err
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Package postgres provides the PostgreSQL implementation of the
// schedule repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Carine01/agenda-courier/internal/schedule"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements schedule.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const blockColumns = `id, tenant_id, date, recurring, until_date, start_minute, end_minute,
	type, reason, created_at`

// CreateBlock persists a new blocked interval.
func (r *Repository) CreateBlock(ctx context.Context, block *schedule.BlockedInterval) error {
	query := `
		INSERT INTO blocked_intervals (id, tenant_id, date, recurring, until_date,
			start_minute, end_minute, type, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		block.ID,
		block.TenantID,
		block.Date,
		block.Recurring,
		block.UntilDate,
		block.StartMinute,
		block.EndMinute,
		block.Type,
		block.Reason,
	).Scan(&block.CreatedAt)
	if err != nil {
		return fmt.Errorf("create blocked interval: %w", err)
	}
	return nil
}

// DeleteBlock removes a tenant's blocked interval by id.
func (r *Repository) DeleteBlock(ctx context.Context, tenantID, id string) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM blocked_intervals WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete blocked interval: %w", err)
	}
	if result.RowsAffected() == 0 {
		return schedule.ErrBlockNotFound
	}
	return nil
}

// ListForDate returns one-off intervals on the date plus recurring
// intervals whose anchor/until range covers it.
func (r *Repository) ListForDate(ctx context.Context, tenantID string, date time.Time) ([]*schedule.BlockedInterval, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM blocked_intervals
		WHERE tenant_id = $1
		  AND (
			(NOT recurring AND date = $2)
			OR (recurring AND date <= $2 AND (until_date IS NULL OR until_date >= $2))
		  )
		ORDER BY start_minute ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("list blocked intervals for date: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

// ListBlocks returns a tenant's intervals anchored within [from, to].
func (r *Repository) ListBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]*schedule.BlockedInterval, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM blocked_intervals
		WHERE tenant_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC, start_minute ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blocked intervals: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

func scanBlocks(rows pgx.Rows) ([]*schedule.BlockedInterval, error) {
	blocks := make([]*schedule.BlockedInterval, 0)
	for rows.Next() {
		var block schedule.BlockedInterval
		err := rows.Scan(
			&block.ID,
			&block.TenantID,
			&block.Date,
			&block.Recurring,
			&block.UntilDate,
			&block.StartMinute,
			&block.EndMinute,
			&block.Type,
			&block.Reason,
			&block.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan blocked interval: %w", err)
		}
		blocks = append(blocks, &block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocked intervals: %w", err)
	}
	return blocks, nil
}

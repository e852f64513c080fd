// Package postgres provides the PostgreSQL implementation of the queue
// repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Carine01/agenda-courier/internal/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const itemColumns = `id, tenant_id, destination, template_key, resolved_text, metadata,
	status, attempts, max_attempts, scheduled_for, last_error, created_at, updated_at, sent_at`

// CreateItem persists a new pending queue item.
func (r *Repository) CreateItem(ctx context.Context, item *queue.Item) error {
	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO queue_items (id, tenant_id, destination, template_key, resolved_text,
			metadata, status, attempts, max_attempts, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		item.ID,
		item.TenantID,
		item.Destination,
		item.TemplateKey,
		item.ResolvedText,
		metadata,
		item.Status,
		item.Attempts,
		item.MaxAttempts,
		item.ScheduledFor,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create queue item: %w", err)
	}
	return nil
}

// GetItem retrieves a tenant's queue item by id.
func (r *Repository) GetItem(ctx context.Context, tenantID, id string) (*queue.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE id = $1 AND tenant_id = $2`

	item, err := scanItem(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrItemNotFound
		}
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// ListItems retrieves a tenant's queue items matching the filter.
func (r *Repository) ListItems(ctx context.Context, filter queue.ListFilter) ([]*queue.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE tenant_id = $1`
	args := []interface{}{filter.TenantID}

	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, filter.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ClaimDue atomically claims up to limit due pending items. SKIP LOCKED
// keeps concurrent processor instances from claiming the same rows.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*queue.Item, error) {
	query := `
		WITH due AS (
			SELECT id FROM queue_items
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_items qi
		SET status = 'processing', attempts = qi.attempts + 1, updated_at = NOW()
		FROM due
		WHERE qi.id = due.id
		RETURNING qi.id, qi.tenant_id, qi.destination, qi.template_key, qi.resolved_text, qi.metadata,
			qi.status, qi.attempts, qi.max_attempts, qi.scheduled_for, qi.last_error,
			qi.created_at, qi.updated_at, qi.sent_at
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the CTE ordering.
	sort.Slice(items, func(i, j int) bool {
		return items[i].ScheduledFor.Before(items[j].ScheduledFor)
	})

	return items, nil
}

// MarkSent transitions a processing item to sent.
func (r *Repository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE queue_items
		SET status = 'sent', sent_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark as sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrItemNotFound
	}
	return nil
}

// MarkForRetry returns a processing item to pending with a later
// scheduled_for. GREATEST keeps scheduled_for monotone.
func (r *Repository) MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error {
	query := `
		UPDATE queue_items
		SET status = 'pending',
			scheduled_for = GREATEST(scheduled_for, $2),
			last_error = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, nextAttempt, sendErr.Error())
	if err != nil {
		return fmt.Errorf("mark for retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrItemNotFound
	}
	return nil
}

// MarkFailed transitions a processing item to failed.
func (r *Repository) MarkFailed(ctx context.Context, id string, sendErr error) error {
	query := `
		UPDATE queue_items
		SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, sendErr.Error())
	if err != nil {
		return fmt.Errorf("mark as failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrItemNotFound
	}
	return nil
}

// Cancel transitions a pending item to cancelled. The status precondition
// resolves races with a concurrent claim: a claimed item cannot be
// cancelled.
func (r *Repository) Cancel(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE queue_items
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("cancel queue item: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Distinguish missing from already-terminal.
	var status queue.Status
	err = r.db.QueryRow(ctx,
		`SELECT status FROM queue_items WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("check queue item status: %w", err)
	}
	return queue.ErrAlreadyFinalized
}

// RecoverStuck resolves processing items whose claim is older than the
// given age. Items with attempts left return to pending; items whose
// expired claim was their last attempt fail, keeping attempts within
// max_attempts on the next claim.
func (r *Repository) RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.Exec(ctx, `
		UPDATE queue_items
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			last_error = CASE WHEN attempts >= max_attempts
				THEN 'claim expired: max attempts exhausted' ELSE last_error END,
			updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stuck items: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteOldSent removes sent items older than the retention window.
func (r *Repository) DeleteOldSent(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.Exec(ctx,
		`DELETE FROM queue_items WHERE status = 'sent' AND sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old sent items: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetStats returns queue size counts by status.
func (r *Repository) GetStats(ctx context.Context) (*queue.Stats, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	defer rows.Close()

	stats := &queue.Stats{}
	for rows.Next() {
		var status queue.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch status {
		case queue.StatusPending:
			stats.Pending = count
		case queue.StatusProcessing:
			stats.Processing = count
		case queue.StatusSent:
			stats.Sent = count
		case queue.StatusFailed:
			stats.Failed = count
		case queue.StatusCancelled:
			stats.Cancelled = count
		}
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*queue.Item, error) {
	var item queue.Item
	var metadata []byte
	var lastError *string

	err := row.Scan(
		&item.ID,
		&item.TenantID,
		&item.Destination,
		&item.TemplateKey,
		&item.ResolvedText,
		&metadata,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.ScheduledFor,
		&lastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.SentAt,
	)
	if err != nil {
		return nil, err
	}

	if lastError != nil {
		item.LastError = *lastError
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &item, nil
}

func scanItems(rows pgx.Rows) ([]*queue.Item, error) {
	items := make([]*queue.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

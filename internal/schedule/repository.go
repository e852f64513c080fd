package schedule

import (
	"context"
	"time"
)

// Repository defines storage operations for blocked intervals.
type Repository interface {
	// CreateBlock persists a new blocked interval.
	CreateBlock(ctx context.Context, block *BlockedInterval) error

	// DeleteBlock removes a tenant's blocked interval by id.
	// Returns ErrBlockNotFound if it does not exist.
	DeleteBlock(ctx context.Context, tenantID, id string) error

	// ListForDate returns every interval that may apply on the given
	// day: one-off intervals on that date plus recurring intervals
	// whose anchor/until range covers it. Callers still filter with
	// AppliesOn.
	ListForDate(ctx context.Context, tenantID string, date time.Time) ([]*BlockedInterval, error)

	// ListBlocks returns a tenant's intervals anchored within
	// [from, to], most recent first.
	ListBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]*BlockedInterval, error)
}

package queue

import (
	"context"
	"time"
)

// ListFilter narrows queue listings. TenantID is mandatory: the store never
// answers a cross-tenant query.
type ListFilter struct {
	TenantID string
	Status   Status // optional
	Limit    int
}

// Repository defines the interface for queue item persistence.
//
// All state transitions are conditional on the current status so that
// concurrent processor instances cannot double-dispatch or resurrect a
// terminal item.
type Repository interface {
	// CreateItem persists a new pending item.
	CreateItem(ctx context.Context, item *Item) error

	// GetItem returns a tenant's item by id.
	GetItem(ctx context.Context, tenantID, id string) (*Item, error)

	// ListItems returns a tenant's items matching the filter,
	// newest first.
	ListItems(ctx context.Context, filter ListFilter) ([]*Item, error)

	// ClaimDue atomically claims up to limit pending items with
	// scheduled_for <= now, ordered by scheduled_for ascending. Claimed
	// items transition to processing and have Attempts incremented; the
	// returned items carry the incremented count. An item claimed by one
	// caller is invisible to concurrent callers.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Item, error)

	// MarkSent transitions a processing item to sent.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkForRetry returns a processing item to pending with a new
	// scheduled_for and records the error.
	MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error

	// MarkFailed transitions a processing item to failed and records the
	// error.
	MarkFailed(ctx context.Context, id string, sendErr error) error

	// Cancel transitions a pending item to cancelled. Returns
	// ErrAlreadyFinalized if the item is terminal or currently claimed,
	// ErrItemNotFound if it does not exist for the tenant.
	Cancel(ctx context.Context, tenantID, id string) error

	// RecoverStuck resolves processing items older than the given age,
	// covering processor crashes between claim and terminal mark. Items
	// with attempts left return to pending; items already at their
	// attempt limit fail, so a re-claim never pushes attempts past
	// MaxAttempts.
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	// DeleteOldSent removes sent items older than the retention window.
	DeleteOldSent(ctx context.Context, olderThan time.Duration) (int64, error)

	// GetStats returns queue size counts by status.
	GetStats(ctx context.Context) (*Stats, error)
}

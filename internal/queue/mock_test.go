package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Carine01/agenda-courier/internal/templates"
)

// memRepository is an in-memory Repository that enforces the same
// conditional transitions as the postgres implementation.
type memRepository struct {
	mu    sync.Mutex
	items map[string]*Item

	createErr error
	claimErr  error
}

func newMemRepository() *memRepository {
	return &memRepository{items: make(map[string]*Item)}
}

func (m *memRepository) CreateItem(_ context.Context, item *Item) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.items[item.ID] = item
	return nil
}

func (m *memRepository) GetItem(_ context.Context, tenantID, id string) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.TenantID != tenantID {
		return nil, ErrItemNotFound
	}
	return item, nil
}

func (m *memRepository) ListItems(_ context.Context, filter ListFilter) ([]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []*Item
	for _, item := range m.items {
		if item.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		items = append(items, item)
		if len(items) == filter.Limit {
			break
		}
	}
	return items, nil
}

func (m *memRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]*Item, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Item
	for _, item := range m.items {
		if item.Status == StatusPending && !item.ScheduledFor.After(now) {
			due = append(due, item)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	for _, item := range due {
		item.Status = StatusProcessing
		item.Attempts++
		item.UpdatedAt = now
	}
	return due, nil
}

func (m *memRepository) MarkSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.Status != StatusProcessing {
		return ErrItemNotFound
	}
	item.Status = StatusSent
	item.SentAt = &at
	item.UpdatedAt = at
	return nil
}

func (m *memRepository) MarkForRetry(_ context.Context, id string, sendErr error, nextAttempt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.Status != StatusProcessing {
		return ErrItemNotFound
	}
	item.Status = StatusPending
	if nextAttempt.After(item.ScheduledFor) {
		item.ScheduledFor = nextAttempt
	}
	item.LastError = sendErr.Error()
	item.UpdatedAt = time.Now()
	return nil
}

func (m *memRepository) MarkFailed(_ context.Context, id string, sendErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.Status != StatusProcessing {
		return ErrItemNotFound
	}
	item.Status = StatusFailed
	item.LastError = sendErr.Error()
	item.UpdatedAt = time.Now()
	return nil
}

func (m *memRepository) Cancel(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.TenantID != tenantID {
		return ErrItemNotFound
	}
	if item.Status != StatusPending {
		return ErrAlreadyFinalized
	}
	item.Status = StatusCancelled
	item.UpdatedAt = time.Now()
	return nil
}

func (m *memRepository) RecoverStuck(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var recovered int64
	for _, item := range m.items {
		if item.Status == StatusProcessing && item.UpdatedAt.Before(cutoff) {
			if item.Attempts >= item.MaxAttempts {
				item.Status = StatusFailed
				item.LastError = "claim expired: max attempts exhausted"
			} else {
				item.Status = StatusPending
			}
			recovered++
		}
	}
	return recovered, nil
}

func (m *memRepository) DeleteOldSent(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var deleted int64
	for id, item := range m.items {
		if item.Status == StatusSent && item.SentAt != nil && item.SentAt.Before(cutoff) {
			delete(m.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memRepository) GetStats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{}
	for _, item := range m.items {
		switch item.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Processing++
		case StatusSent:
			stats.Sent++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// stubResolver resolves from a fixed map.
type stubResolver struct {
	texts map[string]string
}

func (r *stubResolver) Resolve(key string, _ map[string]string) (string, error) {
	text, ok := r.texts[key]
	if !ok {
		return "", templates.ErrTemplateNotFound
	}
	return text, nil
}

// stubProvider returns scripted results per call.
type stubProvider struct {
	mu      sync.Mutex
	results []error // nil means success
	calls   int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Send(_ context.Context, _, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.calls < len(p.results) {
		err = p.results[p.calls]
	}
	p.calls++
	if err != nil {
		return "", err
	}
	return "ext-1", nil
}

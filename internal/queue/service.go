package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Carine01/agenda-courier/internal/pkg/idempotency"
	"github.com/Carine01/agenda-courier/internal/templates"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// defaultMaxAttempts bounds dispatch attempts per item.
const defaultMaxAttempts = 3

// ServiceConfig contains enqueue service configuration.
type ServiceConfig struct {
	MaxAttempts int
}

// Service validates and persists outbound messages.
type Service struct {
	repo        Repository
	resolver    templates.Resolver
	idem        *idempotency.Store // nil when idempotency is disabled
	validate    *validator.Validate
	maxAttempts int
	now         func() time.Time
}

// NewService creates a new enqueue service. idem may be nil.
func NewService(cfg ServiceConfig, repo Repository, resolver templates.Resolver, idem *idempotency.Store) *Service {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		repo:        repo,
		resolver:    resolver,
		idem:        idem,
		validate:    validator.New(),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// EnqueueInput contains data for enqueueing a message.
type EnqueueInput struct {
	TenantID       string            `validate:"required"`
	Destination    string            `validate:"required,e164"`
	TemplateKey    string            `validate:"required"`
	Variables      map[string]string `validate:"-"`
	Metadata       map[string]string `validate:"-"`
	ScheduledFor   *time.Time        `validate:"-"`
	IdempotencyKey string            `validate:"-"`
}

// Enqueue validates the input, resolves the template and persists exactly
// one pending item. No write happens on any validation failure.
func (s *Service) Enqueue(ctx context.Context, input EnqueueInput) (*Item, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	text, err := s.resolver.Resolve(input.TemplateKey, input.Variables)
	if err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		cached, err := s.idem.CheckOrReserve(ctx, input.TenantID, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			slog.Debug("idempotent enqueue replay",
				"tenant_id", input.TenantID,
				"item_id", cached.ItemID,
			)
			return s.repo.GetItem(ctx, input.TenantID, cached.ItemID)
		}
	}

	now := s.now()
	scheduledFor := now
	if input.ScheduledFor != nil && input.ScheduledFor.After(now) {
		scheduledFor = *input.ScheduledFor
	}

	item := &Item{
		ID:           uuid.NewString(),
		TenantID:     input.TenantID,
		Destination:  input.Destination,
		TemplateKey:  input.TemplateKey,
		ResolvedText: text,
		Metadata:     input.Metadata,
		Status:       StatusPending,
		Attempts:     0,
		MaxAttempts:  s.maxAttempts,
		ScheduledFor: scheduledFor,
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			if relErr := s.idem.Release(ctx, input.TenantID, input.IdempotencyKey); relErr != nil {
				slog.Error("failed to release idempotency key", "error", relErr)
			}
		}
		return nil, fmt.Errorf("create queue item: %w", err)
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.StoreResult(ctx, input.TenantID, input.IdempotencyKey, item.ID); err != nil {
			// The item is persisted; a lost cache entry only weakens dedup.
			slog.Error("failed to store idempotency result", "error", err)
		}
	}

	slog.Info("message enqueued",
		"item_id", item.ID,
		"tenant_id", item.TenantID,
		"template_key", item.TemplateKey,
		"scheduled_for", item.ScheduledFor,
	)

	return item, nil
}

// Cancel transitions a pending item to cancelled. Cancellation after the
// item has been claimed for dispatch is not honored.
func (s *Service) Cancel(ctx context.Context, tenantID, id string) (*Item, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}

	if err := s.repo.Cancel(ctx, tenantID, id); err != nil {
		return nil, err
	}

	slog.Info("message cancelled", "item_id", id, "tenant_id", tenantID)
	return s.repo.GetItem(ctx, tenantID, id)
}

// Get returns a tenant's item by id.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Item, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	return s.repo.GetItem(ctx, tenantID, id)
}

// List returns a tenant's items for operational inspection.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	if filter.TenantID == "" {
		return nil, ErrMissingTenant
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListItems(ctx, filter)
}

package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ProcessorConfig contains batch processor configuration.
type ProcessorConfig struct {
	BaseDelay time.Duration // delay before the first retry
	MaxDelay  time.Duration // backoff cap
}

// DefaultProcessorConfig returns default processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BaseDelay: 30 * time.Second,
		MaxDelay:  30 * time.Minute,
	}
}

// BatchResult contains per-invocation dispatch counts.
type BatchResult struct {
	Dispatched int `json:"dispatched"`
	Retried    int `json:"retried"`
	Failed     int `json:"failed"`
}

// Processor dispatches due queue items through the delivery provider,
// applying the retry/backoff state machine. Each ProcessBatch call is a
// bounded, terminating unit of work.
type Processor struct {
	config   ProcessorConfig
	repo     Repository
	provider Provider
	now      func() time.Time
}

// NewProcessor creates a new batch processor.
func NewProcessor(config ProcessorConfig, repo Repository, provider Provider) *Processor {
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultProcessorConfig().BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultProcessorConfig().MaxDelay
	}

	return &Processor{
		config:   config,
		repo:     repo,
		provider: provider,
		now:      time.Now,
	}
}

// ProcessBatch claims up to limit due items and dispatches them in
// scheduled_for order. Item-level failures are recorded on the item and
// never abort the rest of the batch; only claim errors are returned.
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	var result BatchResult

	items, err := p.repo.ClaimDue(ctx, p.now(), limit)
	if err != nil {
		return result, fmt.Errorf("claim due items: %w", err)
	}

	if len(items) == 0 {
		return result, nil
	}

	slog.Debug("processing queue batch", "count", len(items))
	recordQueueClaimed(len(items))

	for _, item := range items {
		switch p.processItem(ctx, item) {
		case outcomeSent:
			result.Dispatched++
		case outcomeRetried:
			result.Retried++
		case outcomeFailed:
			result.Failed++
		}
	}

	return result, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetried
	outcomeFailed
)

func (p *Processor) processItem(ctx context.Context, item *Item) outcome {
	start := p.now()

	externalID, err := p.provider.Send(ctx, item.Destination, item.ResolvedText)
	duration := p.now().Sub(start)

	if err != nil {
		return p.handleSendError(ctx, item, err)
	}

	if err := p.repo.MarkSent(ctx, item.ID, p.now()); err != nil {
		slog.Error("failed to mark as sent", "item_id", item.ID, "error", err)
	}

	recordDispatch(p.provider.Name(), "sent")
	recordSendDuration(p.provider.Name(), duration)

	slog.Debug("message dispatched",
		"item_id", item.ID,
		"tenant_id", item.TenantID,
		"provider", p.provider.Name(),
		"external_id", externalID,
		"duration", duration,
	)

	return outcomeSent
}

func (p *Processor) handleSendError(ctx context.Context, item *Item, err error) outcome {
	slog.Warn("dispatch failed",
		"item_id", item.ID,
		"tenant_id", item.TenantID,
		"attempt", item.Attempts,
		"max_attempts", item.MaxAttempts,
		"error", err,
	)

	// Fatal rejections skip remaining attempts.
	if !isRetryable(err) {
		if markErr := p.repo.MarkFailed(ctx, item.ID, err); markErr != nil {
			slog.Error("failed to mark as failed", "item_id", item.ID, "error", markErr)
		}
		recordDispatch(p.provider.Name(), "failed")
		return outcomeFailed
	}

	if item.Attempts >= item.MaxAttempts {
		if markErr := p.repo.MarkFailed(ctx, item.ID, fmt.Errorf("max attempts exceeded: %w", err)); markErr != nil {
			slog.Error("failed to mark as failed", "item_id", item.ID, "error", markErr)
		}
		recordDispatch(p.provider.Name(), "failed")
		return outcomeFailed
	}

	nextAttempt := p.now().Add(p.backoffDelay(item.Attempts))
	if markErr := p.repo.MarkForRetry(ctx, item.ID, err, nextAttempt); markErr != nil {
		slog.Error("failed to mark for retry", "item_id", item.ID, "error", markErr)
	}
	recordDispatch(p.provider.Name(), "retry")

	slog.Info("message scheduled for retry",
		"item_id", item.ID,
		"next_attempt", nextAttempt,
	)

	return outcomeRetried
}

// backoffDelay returns the delay before the n-th retry:
// base * 2^(n-1), capped at MaxDelay.
func (p *Processor) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.config.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.config.MaxDelay {
			return p.config.MaxDelay
		}
	}

	if delay > p.config.MaxDelay {
		delay = p.config.MaxDelay
	}
	return delay
}

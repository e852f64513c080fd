package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig contains scheduler configuration.
type SchedulerConfig struct {
	TickInterval    time.Duration // cadence of ProcessBatch invocations
	BatchSize       int           // max items per invocation
	StuckAfter      time.Duration // processing items older than this are recovered
	RetainSentFor   time.Duration // sent items older than this are deleted
	MaintainEvery   time.Duration // cadence of recovery/retention/stats sweeps
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:  time.Minute,
		BatchSize:     50,
		StuckAfter:    10 * time.Minute,
		RetainSentFor: 30 * 24 * time.Hour,
		MaintainEvery: 5 * time.Minute,
	}
}

// Scheduler invokes the batch processor on a fixed cadence. It replaces
// cron-style triggering with an explicit, stoppable component.
type Scheduler struct {
	config    SchedulerConfig
	processor *Processor
	repo      Repository

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a new queue scheduler.
func NewScheduler(config SchedulerConfig, processor *Processor, repo Repository) *Scheduler {
	def := DefaultSchedulerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = def.TickInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.StuckAfter <= 0 {
		config.StuckAfter = def.StuckAfter
	}
	if config.RetainSentFor <= 0 {
		config.RetainSentFor = def.RetainSentFor
	}
	if config.MaintainEvery <= 0 {
		config.MaintainEvery = def.MaintainEvery
	}

	return &Scheduler{
		config:    config,
		processor: processor,
		repo:      repo,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the processing and maintenance loops.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting queue scheduler",
		"tick_interval", s.config.TickInterval,
		"batch_size", s.config.BatchSize,
	)

	s.wg.Add(2)
	go s.processLoop(ctx)
	go s.maintainLoop(ctx)
}

// Stop gracefully stops the scheduler, waiting for an in-flight batch.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("queue scheduler stopped")
}

func (s *Scheduler) processLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			result, err := s.processor.ProcessBatch(ctx, s.config.BatchSize)
			if err != nil {
				slog.Error("process batch failed", "error", err)
				continue
			}
			if result.Dispatched+result.Retried+result.Failed > 0 {
				slog.Info("batch processed",
					"dispatched", result.Dispatched,
					"retried", result.Retried,
					"failed", result.Failed,
				)
			}
		}
	}
}

func (s *Scheduler) maintainLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.MaintainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.maintain(ctx)
		}
	}
}

func (s *Scheduler) maintain(ctx context.Context) {
	recovered, err := s.repo.RecoverStuck(ctx, s.config.StuckAfter)
	if err != nil {
		slog.Error("recover stuck items failed", "error", err)
	} else if recovered > 0 {
		slog.Warn("recovered stuck items", "count", recovered)
	}

	deleted, err := s.repo.DeleteOldSent(ctx, s.config.RetainSentFor)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
	} else if deleted > 0 {
		slog.Debug("retention sweep", "deleted", deleted)
	}

	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		slog.Error("failed to get queue stats", "error", err)
		return
	}
	RecordStats(stats)
}

package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	defaultOpenMinute  = 8 * 60
	defaultCloseMinute = 18 * 60
	defaultSlotStep    = 30
	defaultMaxResults  = 10
	maxResultsLimit    = 100
)

// BusinessHours bounds the daily window slot suggestion scans.
type BusinessHours struct {
	OpenMinute  int // first minute of the working day
	CloseMinute int // minute the working day ends (exclusive)

	// HalfDayWeekday, when set, closes earlier on that weekday.
	HalfDayWeekday     *time.Weekday
	HalfDayCloseMinute int
}

// DefaultBusinessHours returns the 08:00 to 18:00 default window.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		OpenMinute:  defaultOpenMinute,
		CloseMinute: defaultCloseMinute,
	}
}

func (h BusinessHours) closeMinuteOn(date time.Time) int {
	if h.HalfDayWeekday != nil && date.Weekday() == *h.HalfDayWeekday {
		return h.HalfDayCloseMinute
	}
	return h.CloseMinute
}

// Service implements the conflict resolver and administration of blocked
// intervals.
type Service struct {
	repo     Repository
	hours    BusinessHours
	slotStep int
	now      func() time.Time
}

// NewService creates a new schedule service.
func NewService(repo Repository, hours BusinessHours) *Service {
	if hours.OpenMinute <= 0 && hours.CloseMinute <= 0 {
		hours = DefaultBusinessHours()
	}

	return &Service{
		repo:     repo,
		hours:    hours,
		slotStep: defaultSlotStep,
		now:      time.Now,
	}
}

// IsBlocked checks whether the window [startMinute, startMinute+duration)
// on the given day overlaps any of the tenant's blocked intervals. The
// first overlapping interval short-circuits the scan. A storage failure
// propagates as an error: the caller must never treat an unverifiable
// window as free.
func (s *Service) IsBlocked(ctx context.Context, tenantID string, date time.Time, startMinute, duration int) (Conflict, error) {
	if tenantID == "" {
		return Conflict{}, ErrMissingTenant
	}
	if startMinute < 0 || duration <= 0 || startMinute+duration > minutesPerDay {
		return Conflict{}, fmt.Errorf("%w: start %d, duration %d", ErrInvalidWindow, startMinute, duration)
	}

	blocks, err := s.repo.ListForDate(ctx, tenantID, date)
	if err != nil {
		return Conflict{}, fmt.Errorf("list blocked intervals: %w", err)
	}

	return resolve(blocks, date, startMinute, duration), nil
}

// SuggestFreeSlots scans the business-hours window in fixed steps and
// returns up to maxResults start minutes whose windows are free, in
// chronological order.
func (s *Service) SuggestFreeSlots(ctx context.Context, tenantID string, date time.Time, duration, maxResults int) ([]int, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if duration <= 0 || duration > minutesPerDay {
		return nil, fmt.Errorf("%w: duration %d", ErrInvalidWindow, duration)
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxResultsLimit {
		maxResults = maxResultsLimit
	}

	blocks, err := s.repo.ListForDate(ctx, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("list blocked intervals: %w", err)
	}

	closeMinute := s.hours.closeMinuteOn(date)
	slots := make([]int, 0, maxResults)

	for start := s.hours.OpenMinute; start+duration <= closeMinute; start += s.slotStep {
		if resolve(blocks, date, start, duration).Blocked {
			continue
		}
		slots = append(slots, start)
		if len(slots) == maxResults {
			break
		}
	}

	return slots, nil
}

// resolve applies the half-open overlap check against every interval
// that applies on the day.
func resolve(blocks []*BlockedInterval, date time.Time, startMinute, duration int) Conflict {
	for _, block := range blocks {
		if !block.AppliesOn(date) {
			continue
		}
		if block.Overlaps(startMinute, duration) {
			return Conflict{Blocked: true, Reason: block.Reason, Type: block.Type}
		}
	}
	return Conflict{}
}

// CreateBlockInput carries parameters for creating one blocked interval.
type CreateBlockInput struct {
	Date        time.Time  `json:"date"`
	Recurring   bool       `json:"recurring"`
	UntilDate   *time.Time `json:"until_date"`
	StartMinute int        `json:"start_minute"`
	EndMinute   int        `json:"end_minute"`
	Type        BlockType  `json:"type"`
	Reason      string     `json:"reason"`
}

// CreateBlock validates and persists a new blocked interval.
func (s *Service) CreateBlock(ctx context.Context, tenantID string, input CreateBlockInput) (*BlockedInterval, error) {
	block := &BlockedInterval{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Date:        dateOnly(input.Date),
		Recurring:   input.Recurring,
		UntilDate:   input.UntilDate,
		StartMinute: input.StartMinute,
		EndMinute:   input.EndMinute,
		Type:        input.Type,
		Reason:      input.Reason,
	}
	if err := block.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("create blocked interval: %w", err)
	}

	slog.Info("blocked interval created",
		"block_id", block.ID,
		"tenant_id", tenantID,
		"type", block.Type,
		"recurring", block.Recurring,
	)

	return block, nil
}

// DeleteBlock removes a tenant's blocked interval.
func (s *Service) DeleteBlock(ctx context.Context, tenantID, id string) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	return s.repo.DeleteBlock(ctx, tenantID, id)
}

// ListBlocks returns a tenant's intervals anchored within [from, to].
// An empty range defaults to the surrounding year.
func (s *Service) ListBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]*BlockedInterval, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}

	if from.IsZero() {
		from = dateOnly(s.now()).AddDate(0, -6, 0)
	}
	if to.IsZero() {
		to = dateOnly(s.now()).AddDate(0, 6, 0)
	}

	return s.repo.ListBlocks(ctx, tenantID, from, to)
}

// GenerateInput carries parameters for bulk rule generation.
type GenerateInput struct {
	Type        BlockType   `json:"type"`
	StartMinute int         `json:"start_minute"`
	EndMinute   int         `json:"end_minute"`
	Reason      string      `json:"reason"`
	From        time.Time   `json:"from"`
	Until       time.Time   `json:"until"`
	Dates       []time.Time `json:"dates,omitempty"` // holiday anchor dates
}

// GenerateRecurring bulk-creates the recurring rules for a block type:
// a daily lunch window, weekly Saturday and Sunday full-day blocks, a
// yearly block per holiday date, or a weekly custom block anchored on
// From's weekday.
func (s *Service) GenerateRecurring(ctx context.Context, tenantID string, input GenerateInput) ([]*BlockedInterval, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if input.Until.IsZero() {
		return nil, fmt.Errorf("%w: until date is required", ErrInvalidInterval)
	}
	if input.From.IsZero() {
		input.From = dateOnly(s.now())
	}

	anchors, err := s.anchorsFor(input)
	if err != nil {
		return nil, err
	}

	until := dateOnly(input.Until)
	created := make([]*BlockedInterval, 0, len(anchors))
	for _, anchor := range anchors {
		block, err := s.CreateBlock(ctx, tenantID, CreateBlockInput{
			Date:        anchor,
			Recurring:   true,
			UntilDate:   &until,
			StartMinute: input.StartMinute,
			EndMinute:   input.EndMinute,
			Type:        input.Type,
			Reason:      input.Reason,
		})
		if err != nil {
			return created, err
		}
		created = append(created, block)
	}

	return created, nil
}

func (s *Service) anchorsFor(input GenerateInput) ([]time.Time, error) {
	from := dateOnly(input.From)

	switch input.Type {
	case BlockTypeLunch, BlockTypeCustom:
		return []time.Time{from}, nil

	case BlockTypeWeekend:
		return []time.Time{
			nextWeekday(from, time.Saturday),
			nextWeekday(from, time.Sunday),
		}, nil

	case BlockTypeHoliday:
		if len(input.Dates) == 0 {
			return nil, fmt.Errorf("%w: holiday generation requires dates", ErrInvalidInterval)
		}
		anchors := make([]time.Time, 0, len(input.Dates))
		for _, d := range input.Dates {
			anchors = append(anchors, dateOnly(d))
		}
		return anchors, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInterval, input.Type)
	}
}

// nextWeekday returns the first occurrence of the weekday on or after
// the given date.
func nextWeekday(from time.Time, day time.Weekday) time.Time {
	offset := (int(day) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, offset)
}

// Package schedule provides tenant-scoped blocked intervals and the
// conflict resolver that checks time windows against them.
package schedule

import (
	"fmt"
	"time"
)

// BlockType classifies a blocked interval.
type BlockType string

const (
	BlockTypeLunch   BlockType = "lunch"
	BlockTypeWeekend BlockType = "weekend"
	BlockTypeHoliday BlockType = "holiday"
	BlockTypeCustom  BlockType = "custom"
)

// Valid reports whether the block type is known.
func (t BlockType) Valid() bool {
	switch t {
	case BlockTypeLunch, BlockTypeWeekend, BlockTypeHoliday, BlockTypeCustom:
		return true
	}
	return false
}

const minutesPerDay = 24 * 60

// BlockedInterval marks a half-open window [StartMinute, EndMinute) of a
// calendar day as unavailable for a tenant. A recurring interval repeats
// from its anchor Date until UntilDate; the repeat rule depends on Type.
type BlockedInterval struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Date        time.Time  `json:"date"`
	Recurring   bool       `json:"recurring"`
	UntilDate   *time.Time `json:"until_date,omitempty"`
	StartMinute int        `json:"start_minute"`
	EndMinute   int        `json:"end_minute"`
	Type        BlockType  `json:"type"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Validate checks structural invariants.
func (b *BlockedInterval) Validate() error {
	if b.TenantID == "" {
		return ErrMissingTenant
	}
	if !b.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInterval, b.Type)
	}
	if b.StartMinute < 0 || b.EndMinute > minutesPerDay {
		return fmt.Errorf("%w: minutes must be within [0, %d]", ErrInvalidInterval, minutesPerDay)
	}
	if b.StartMinute >= b.EndMinute {
		return fmt.Errorf("%w: start minute %d must be before end minute %d",
			ErrInvalidInterval, b.StartMinute, b.EndMinute)
	}
	if b.Recurring && b.UntilDate == nil {
		return fmt.Errorf("%w: recurring interval requires until_date", ErrInvalidInterval)
	}
	return nil
}

// AppliesOn reports whether the interval blocks the given calendar day.
// Non-recurring intervals apply only on their own date. Recurring ones
// repeat from the anchor date until UntilDate:
//   - lunch repeats every day
//   - weekend and custom repeat weekly on the anchor's weekday
//   - holiday repeats yearly on the anchor's month and day
func (b *BlockedInterval) AppliesOn(date time.Time) bool {
	date = dateOnly(date)
	anchor := dateOnly(b.Date)

	if !b.Recurring {
		return date.Equal(anchor)
	}

	if date.Before(anchor) {
		return false
	}
	if b.UntilDate != nil && date.After(dateOnly(*b.UntilDate)) {
		return false
	}

	switch b.Type {
	case BlockTypeLunch:
		return true
	case BlockTypeHoliday:
		return date.Month() == anchor.Month() && date.Day() == anchor.Day()
	default:
		return date.Weekday() == anchor.Weekday()
	}
}

// Overlaps reports whether the half-open window [startMinute,
// startMinute+duration) intersects the interval. A window that ends
// exactly at StartMinute or starts exactly at EndMinute does not
// overlap.
func (b *BlockedInterval) Overlaps(startMinute, duration int) bool {
	return startMinute < b.EndMinute && startMinute+duration > b.StartMinute
}

// Conflict is the result of a blocked-window check.
type Conflict struct {
	Blocked bool      `json:"blocked"`
	Reason  string    `json:"reason,omitempty"`
	Type    BlockType `json:"type,omitempty"`
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

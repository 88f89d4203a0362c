package shared

import (
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Date Range Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DateRange is an inclusive range of calendar days. From and To are midnights.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange creates a DateRange, rejecting ranges that end before they start.
func NewDateRange(from, to time.Time) (DateRange, error) {
	if to.Before(from) {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{From: from, To: to}, nil
}

package analysis

import (
	"math"
	"time"
)

// Budget is the outer turn deadline, expressed as a start time and a total
// duration. A nil *Budget is unlimited.
type Budget struct {
	StartedAt time.Time
	Total     time.Duration
}

// NewBudget starts a budget of total at now.
func NewBudget(now time.Time, total time.Duration) *Budget {
	return &Budget{StartedAt: now, Total: total}
}

// Remaining returns the time left at now. It may be negative.
func (b *Budget) Remaining(now time.Time) time.Duration {
	if b == nil {
		return time.Duration(math.MaxInt64)
	}
	return b.Total - now.Sub(b.StartedAt)
}

package rewards

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the precision claim amounts are stored with.
const AmountPlaces = 6

// Candidate is one eligible activity offered to the allocator.
type Candidate struct {
	ActivityID string
	StartedAt  time.Time
	Earned     decimal.Decimal
}

// Allocation is the allocator's selection for one claim.
type Allocation struct {
	ActivityIDs []string
	Amount      decimal.Decimal
	// Partial is set when the single selected activity was clamped to the remaining cap.
	Partial bool
}

// Empty reports whether nothing can be claimed.
func (a Allocation) Empty() bool {
	return len(a.ActivityIDs) == 0 || !a.Amount.IsPositive()
}

// RemainingCap returns max(0, dailyCap - confirmed).
func RemainingCap(dailyCap, confirmed decimal.Decimal) decimal.Decimal {
	remaining := dailyCap.Sub(confirmed)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Allocate selects activities in start order while the running total fits
// under remaining. Only the first selected activity may be clamped to the
// cap; any later overflow ends the scan. The sum is rounded once, at the end.
func Allocate(candidates []Candidate, remaining decimal.Decimal) Allocation {
	if !remaining.IsPositive() {
		return Allocation{Amount: decimal.Zero}
	}

	ordered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Earned.IsPositive() {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].StartedAt.Equal(ordered[j].StartedAt) {
			return ordered[i].StartedAt.Before(ordered[j].StartedAt)
		}
		return ordered[i].ActivityID < ordered[j].ActivityID
	})

	out := Allocation{Amount: decimal.Zero}
	total := decimal.Zero
	for _, c := range ordered {
		next := total.Add(c.Earned)
		if next.GreaterThan(remaining) {
			if len(out.ActivityIDs) == 0 {
				out.ActivityIDs = append(out.ActivityIDs, c.ActivityID)
				total = remaining
				out.Partial = true
			}
			break
		}
		out.ActivityIDs = append(out.ActivityIDs, c.ActivityID)
		total = next
	}

	out.Amount = total.Round(AmountPlaces)
	if out.Amount.GreaterThan(remaining) {
		out.Amount = remaining.Truncate(AmountPlaces)
	}
	return out
}

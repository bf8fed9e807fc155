package rewards

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

func candidate(id string, offset time.Duration, earned string) Candidate {
	return Candidate{ActivityID: id, StartedAt: base.Add(offset), Earned: decimal.RequireFromString(earned)}
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestAllocatePartialFirstActivity(t *testing.T) {
	alloc := Allocate([]Candidate{candidate("a", 0, "25")}, decimal.NewFromInt(10))

	require.Equal(t, []string{"a"}, alloc.ActivityIDs)
	requireAmount(t, "10", alloc.Amount)
	require.True(t, alloc.Partial)
}

func TestAllocateStopsAtFirstOverflowAfterSelection(t *testing.T) {
	alloc := Allocate([]Candidate{
		candidate("second", time.Hour, "6"),
		candidate("first", 0, "6"),
	}, decimal.NewFromInt(10))

	require.Equal(t, []string{"first"}, alloc.ActivityIDs)
	requireAmount(t, "6", alloc.Amount)
	require.False(t, alloc.Partial)
}

func TestAllocateDoesNotSkipPastOverflow(t *testing.T) {
	alloc := Allocate([]Candidate{
		candidate("a", 0, "3"),
		candidate("b", time.Hour, "8"),
		candidate("c", 2*time.Hour, "1"),
	}, decimal.NewFromInt(10))

	require.Equal(t, []string{"a"}, alloc.ActivityIDs)
	requireAmount(t, "3", alloc.Amount)
}

func TestAllocateSelectsEverythingUnderCap(t *testing.T) {
	alloc := Allocate([]Candidate{
		candidate("a", 0, "3"),
		candidate("b", time.Hour, "3"),
		candidate("c", 2*time.Hour, "4"),
	}, decimal.NewFromInt(10))

	require.Equal(t, []string{"a", "b", "c"}, alloc.ActivityIDs)
	requireAmount(t, "10", alloc.Amount)
}

func TestAllocateSkipsZeroEarners(t *testing.T) {
	alloc := Allocate([]Candidate{
		candidate("zero", 0, "0"),
		candidate("b", time.Hour, "2.5"),
	}, decimal.NewFromInt(10))

	require.Equal(t, []string{"b"}, alloc.ActivityIDs)
}

func TestAllocateNothingWhenCapExhausted(t *testing.T) {
	alloc := Allocate([]Candidate{candidate("a", 0, "5")}, decimal.Zero)
	require.True(t, alloc.Empty())
	require.Empty(t, alloc.ActivityIDs)

	alloc = Allocate(nil, decimal.NewFromInt(10))
	require.True(t, alloc.Empty())
}

func TestAllocateRoundsTheSumOnce(t *testing.T) {
	alloc := Allocate([]Candidate{
		candidate("a", 0, "1.0000004"),
		candidate("b", time.Minute, "1.0000004"),
	}, decimal.NewFromInt(50))

	requireAmount(t, "2.000001", alloc.Amount)
}

func TestAllocateOrdersTiesByID(t *testing.T) {
	alloc := Allocate([]Candidate{
		candidate("b", 0, "6"),
		candidate("a", 0, "6"),
	}, decimal.NewFromInt(10))

	require.Equal(t, []string{"a"}, alloc.ActivityIDs)
}

func TestRemainingCap(t *testing.T) {
	requireAmount(t, "20", RemainingCap(decimal.NewFromInt(50), decimal.NewFromInt(30)))
	requireAmount(t, "0", RemainingCap(decimal.NewFromInt(50), decimal.NewFromInt(50)))
	requireAmount(t, "0", RemainingCap(decimal.NewFromInt(50), decimal.NewFromInt(70)))
}

func TestDayWindowAt(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	w := DayWindowAt(time.Date(2026, 3, 15, 2, 30, 0, 0, loc))

	require.Equal(t, "2026-03-14", w.Key)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), w.Start)
	require.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), w.End)
	require.True(t, w.Contains(w.Start))
	require.False(t, w.Contains(w.End))
}

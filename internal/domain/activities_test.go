package domain_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/events"
	"example.com/fitrewards/internal/rewards"
)

func TestIngestSkipsDuplicates(t *testing.T) {
	h := newHarness(t, 50)
	distance := 3300.0
	in := domain.IngestInput{
		UserID: h.user(alice).ID, Provider: "STRAVA", ProviderActivityID: "101",
		Kind: rewards.KindRun, StartedAt: morning, DurationSec: 1000, DistanceM: &distance,
	}

	a, dup, err := h.activities.Ingest(context.Background(), in)
	require.NoError(t, err)
	require.False(t, dup)
	require.NotNil(t, a.AvgSpeedMps)
	require.InDelta(t, 3.3, *a.AvgSpeedMps, 1e-9)
	require.Equal(t, 70, *a.IntensityScore)
	require.Nil(t, a.GenuineScore)

	_, dup, err = h.activities.Ingest(context.Background(), in)
	require.NoError(t, err)
	require.True(t, dup)

	var ingested int
	for _, e := range h.store.Events() {
		if e.EventType == events.TypeActivityIngested {
			ingested++
		}
	}
	require.Equal(t, 1, ingested)
}

func TestIngestValidation(t *testing.T) {
	h := newHarness(t, 50)
	base := domain.IngestInput{UserID: "u", Provider: "MANUAL", ProviderActivityID: "1", Kind: rewards.KindWalk, StartedAt: morning, DurationSec: 600}

	cases := map[string]func(*domain.IngestInput){
		"kind":     func(in *domain.IngestInput) { in.Kind = "SWIM" },
		"duration": func(in *domain.IngestInput) { in.DurationSec = 0 },
		"provider": func(in *domain.IngestInput) { in.ProviderActivityID = "" },
		"start":    func(in *domain.IngestInput) { in.StartedAt = time.Time{} },
		"genuine": func(in *domain.IngestInput) {
			g := 101
			in.GenuineScore = &g
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, _, err := h.activities.Ingest(context.Background(), in)
			require.ErrorIs(t, err, domain.ErrInvalidActivity)
		})
	}
}

func TestHistoryPaginatesNewestFirst(t *testing.T) {
	h := newHarness(t, 50)
	userID := h.user(alice).ID
	for i := 0; i < 5; i++ {
		h.earn(alice, morning.Add(-time.Duration(i)*24*time.Hour), 2)
	}
	// outside the week range
	h.earn(alice, morning.Add(-9*24*time.Hour), 2)

	page, cursor, err := h.activities.History(context.Background(), userID, domain.RangeWeek, nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.NotNil(t, cursor)
	require.True(t, page[0].Activity.StartedAt.After(page[1].Activity.StartedAt))
	requireAmount(t, "2", page[0].Score.Earned)

	rest, _, err := h.activities.History(context.Background(), userID, domain.RangeWeek, cursor, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	for _, a := range rest {
		require.True(t, a.Activity.StartedAt.Before(page[2].Activity.StartedAt), fmt.Sprint(a.Activity.StartedAt))
	}

	month, _, err := h.activities.History(context.Background(), userID, domain.RangeMonth, nil, 0)
	require.NoError(t, err)
	require.Len(t, month, 6)
}

package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/require"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/provider"
	"example.com/fitrewards/internal/rewards"
)

func distance(v float64) *float64 { return &v }

func TestNormalizeStrava(t *testing.T) {
	raw := json.RawMessage(`{"id":101,"type":"Walk"}`)
	in, ok := NormalizeStrava("user-1", provider.StravaActivity{
		ID:          101,
		Type:        "Walk",
		StartDate:   time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC),
		ElapsedTime: 1200,
		Distance:    distance(1800.6),
		Raw:         raw,
	})
	require.True(t, ok)
	require.Equal(t, rewards.KindWalk, in.Kind)
	require.Equal(t, "101", in.ProviderActivityID)
	require.Equal(t, provider.Strava, in.Provider)
	require.InDelta(t, 1801.0, *in.DistanceM, 1e-9)
	require.Nil(t, in.GenuineScore)

	sum := sha256.Sum256(raw)
	require.Equal(t, hex.EncodeToString(sum[:]), in.RawHash)

	_, ok = NormalizeStrava("user-1", provider.StravaActivity{ID: 1, Type: "Ride"})
	require.False(t, ok)
}

type stubTokens struct{ err error }

func (s stubTokens) ValidAccessToken(context.Context, string) (string, error) { return "tok", s.err }

type stubSource struct {
	items []provider.StravaActivity
	token string
}

func (s *stubSource) ListActivities(_ context.Context, token string, page, perPage int) ([]provider.StravaActivity, error) {
	s.token = token
	if page != 1 || perPage != 30 {
		return nil, fmt.Errorf("unexpected page %d/%d", page, perPage)
	}
	return s.items, nil
}

type stubIngester struct {
	seen map[string]bool
	err  error
}

func (s *stubIngester) Ingest(_ context.Context, in domain.IngestInput) (domain.Activity, bool, error) {
	if s.err != nil {
		return domain.Activity{}, false, s.err
	}
	if s.seen[in.ProviderActivityID] {
		return domain.Activity{}, true, nil
	}
	s.seen[in.ProviderActivityID] = true
	return domain.Activity{ID: in.ProviderActivityID}, false, nil
}

func stravaItems() []provider.StravaActivity {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	return []provider.StravaActivity{
		{ID: 1, Type: "Run", StartDate: start, ElapsedTime: 1800, Distance: distance(5000)},
		{ID: 2, Type: "Ride", StartDate: start, ElapsedTime: 3600},
		{ID: 3, Type: "Walk", StartDate: start, ElapsedTime: 600},
	}
}

func TestSyncCountsSavedAndSkipped(t *testing.T) {
	source := &stubSource{items: stravaItems()}
	ingester := &stubIngester{seen: map[string]bool{"3": true}}
	syncer := NewSyncer(stubTokens{}, source, ingester, 0, nil)

	res, err := syncer.Sync(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, SyncResult{Fetched: 3, Saved: 1, Skipped: 2}, res)
	require.Equal(t, "tok", source.token)

	res, err = syncer.Sync(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, SyncResult{Fetched: 3, Saved: 0, Skipped: 3}, res)
}

func TestSyncStopsOnStoreFailure(t *testing.T) {
	boom := errors.New("db down")
	syncer := NewSyncer(stubTokens{}, &stubSource{items: stravaItems()}, &stubIngester{err: boom}, 30, nil)

	_, err := syncer.Sync(context.Background(), "user-1")
	require.ErrorIs(t, err, boom)
}

func TestSyncWorkerCancelsWhenNotConnected(t *testing.T) {
	syncer := NewSyncer(stubTokens{err: provider.ErrNotConnected}, &stubSource{}, &stubIngester{}, 30, nil)
	worker := NewSyncWorker(syncer)

	err := worker.Work(context.Background(), &river.Job[SyncJobArgs]{Args: SyncJobArgs{UserID: "user-1"}})
	require.ErrorIs(t, err, provider.ErrNotConnected)
	require.Equal(t, "provider_sync", SyncJobArgs{}.Kind())
}

func TestInlineSchedulerReturnsResult(t *testing.T) {
	syncer := NewSyncer(stubTokens{}, &stubSource{items: stravaItems()}, &stubIngester{seen: map[string]bool{}}, 30, nil)

	ticket, err := NewInlineScheduler(syncer).ScheduleSync(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, ticket.Result)
	require.Equal(t, 2, ticket.Result.Saved)
}

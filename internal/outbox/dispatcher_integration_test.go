//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/fitrewards/internal/events"
	"example.com/fitrewards/internal/testsupport"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)

	claimID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, claimID, events.TypeClaimPrepared))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5, nil)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "reward_claims", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	afterDelivered := testutil.ToFloat64(deliveredCounter)
	require.InDelta(t, beforeDelivered+1, afterDelivered, 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "published rows are not redelivered")
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)

	walletID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, walletID, events.TypeWalletCredited))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5, nil)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("reward_wallets"))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("reward_wallets")), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE aggregate_id = $1`, walletID).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDLQManagerRequeuesAndQuarantines(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)

	activityID := uuid.NewString()
	eventID := seedOutbox(t, ctx, pool, activityID, events.TypeActivityIngested)

	failing := NewDispatcher(pool, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 3}, time.Millisecond, 5, nil)
	require.NoError(t, failing.processBatch(ctx))

	manager := NewDLQManager(pool, 1, time.Minute)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	var pending int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND aggregate_id = $1 AND event_id <> $2`, activityID, eventID,
	).Scan(&pending))
	require.Equal(t, 1, pending, "replayed event is back in the outbox")

	healthy := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, healthy, &stubRegistry{id: 3}, time.Millisecond, 5, nil).processBatch(ctx))
	require.Len(t, healthy.writes, 1)
	require.Equal(t, "reward_activities", healthy.writes[0].topic)

	// An entry that already used its retries is quarantined instead of replayed.
	_, err = pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES (99, $1, 'reward_activities', '{}'::jsonb, 'broker down', 'activity', 'exhausted', 'reward_activities-value', 'u', 1, NOW())`,
		events.TypeActivityIngested,
	)
	require.NoError(t, err)

	requeued, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)

	var reason string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT quarantine_reason FROM outbox_dlq WHERE aggregate_id = 'exhausted' AND quarantined_at IS NOT NULL`,
	).Scan(&reason))
	require.Equal(t, "retry limit reached", reason)
}

func TestDispatcherBatchDurationIncludesDelivery(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)
	require.NotZero(t, seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeClaimPrepared))

	const delay = 200 * time.Millisecond
	dispatcher := NewDispatcher(pool, &stubProducer{delay: delay}, &stubRegistry{id: 42}, 10*time.Millisecond, 5, nil)

	before := histogramSampleSum(t)
	require.NoError(t, dispatcher.processBatch(ctx))
	require.GreaterOrEqual(t, histogramSampleSum(t)-before, delay.Seconds())
}

func histogramSampleSum(t *testing.T) float64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	return metric.GetHistogram().GetSampleSum()
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, aggregateID, eventType string) int64 {
	t.Helper()

	route, ok := events.Lookup(eventType)
	require.True(t, ok)

	payload, err := json.Marshal(map[string]any{"aggregate_id": aggregateID})
	require.NoError(t, err)

	var eventID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         RETURNING event_id`,
		"reward", aggregateID, eventType, route.Topic, route.SchemaSubject, aggregateID, payload,
	).Scan(&eventID))
	return eventID
}

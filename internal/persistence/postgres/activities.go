package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/rewards"
)

const activityColumns = `activity_id, user_id, provider, provider_activity_id, kind, started_at, duration_sec,
        distance_m, avg_speed_mps, intensity_score, genuine_score, claim_id, claimed_at, settlement_ref,
        COALESCE(raw_hash, ''), created_at`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a    domain.Activity
		kind string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderActivityID, &kind, &a.StartedAt, &a.DurationSec,
		&a.DistanceM, &a.AvgSpeedMps, &a.IntensityScore, &a.GenuineScore, &a.ClaimID, &a.ClaimedAt, &a.SettlementRef,
		&a.RawHash, &a.CreatedAt)
	if err != nil {
		return domain.Activity{}, err
	}
	a.Kind = rewards.Kind(kind)
	a.StartedAt = utc(a.StartedAt)
	a.CreatedAt = utc(a.CreatedAt)
	if a.ClaimedAt != nil {
		at := utc(*a.ClaimedAt)
		a.ClaimedAt = &at
	}
	return a, nil
}

func collectActivities(rows pgx.Rows, capacity int) ([]domain.Activity, error) {
	defer rows.Close()
	out := make([]domain.Activity, 0, capacity)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EligibleActivities locks the candidate rows so a concurrent confirm cannot
// settle them while a prepare is allocating.
func (t *pgTx) EligibleActivities(ctx context.Context, f domain.EligibilityFilter) ([]domain.Activity, error) {
	kinds := make([]string, len(f.Kinds))
	for i, k := range f.Kinds {
		kinds[i] = string(k)
	}
	rows, err := t.tx.Query(ctx,
		`SELECT `+activityColumns+` FROM activities
          WHERE user_id = $1
            AND started_at >= $2 AND started_at < $3
            AND claimed_at IS NULL
            AND duration_sec >= $4
            AND kind = ANY($5)
            AND (claim_id IS NULL OR claim_id = $6)
          ORDER BY started_at, activity_id
          FOR UPDATE`,
		f.UserID, f.Window.Start, f.Window.End, f.MinDurationSec, kinds, f.IncludeClaimID,
	)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows, 8)
}

func (t *pgTx) InsertActivity(ctx context.Context, a domain.Activity) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO activities (activity_id, user_id, provider, provider_activity_id, kind, started_at, duration_sec,
                                 distance_m, avg_speed_mps, intensity_score, genuine_score, raw_hash, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.UserID, a.Provider, a.ProviderActivityID, string(a.Kind), a.StartedAt, a.DurationSec,
		a.DistanceM, a.AvgSpeedMps, a.IntensityScore, a.GenuineScore, nullIfEmpty(a.RawHash), a.CreatedAt,
	)
	if isUniqueViolation(err, providerActivityConstraint) {
		return domain.ErrDuplicateActivity
	}
	return err
}

// ListActivities implements domain.ActivityReader: newest first, keyset paginated on (started_at, activity_id).
func (s *Store) ListActivities(ctx context.Context, userID string, since time.Time, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []any{userID, since, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id = $1 AND started_at >= $2`

	if cursor != nil {
		query += ` AND (started_at, activity_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}

	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT $3`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	results, err := collectActivities(rows, limit)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/domain"
)

const claimColumns = `claim_id, user_id, day_key, amount::text, status, settlement_ref, confirmed_at, created_at`

func scanClaim(row pgx.Row) (*domain.RewardClaim, error) {
	var (
		c      domain.RewardClaim
		amount string
		status string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.DayKey, &amount, &status, &c.SettlementRef, &c.ConfirmedAt, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	c.Amount = parsed
	c.Status = domain.ClaimStatus(status)
	c.CreatedAt = utc(c.CreatedAt)
	if c.ConfirmedAt != nil {
		at := utc(*c.ConfirmedAt)
		c.ConfirmedAt = &at
	}
	return &c, nil
}

func (t *pgTx) PendingClaim(ctx context.Context, userID, dayKey string) (*domain.RewardClaim, error) {
	return scanClaim(t.tx.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM reward_claims
          WHERE user_id = $1 AND day_key = $2 AND status = 'PENDING'`,
		userID, dayKey,
	))
}

func (t *pgTx) ConfirmedTotal(ctx context.Context, userID, dayKey string) (decimal.Decimal, error) {
	var total string
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM reward_claims
          WHERE user_id = $1 AND day_key = $2 AND status = 'CONFIRMED'`,
		userID, dayKey,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return parseAmount(total)
}

func (t *pgTx) InsertClaim(ctx context.Context, c domain.RewardClaim) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reward_claims (claim_id, user_id, day_key, amount, status, created_at)
         VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		c.ID, c.UserID, c.DayKey, c.Amount.String(), string(c.Status), c.CreatedAt,
	)
	if isUniqueViolation(err, pendingClaimConstraint) {
		return domain.ErrPendingClaimExists
	}
	return err
}

func (t *pgTx) ClaimForUpdate(ctx context.Context, claimID string) (*domain.RewardClaim, error) {
	return scanClaim(t.tx.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM reward_claims WHERE claim_id = $1 FOR UPDATE`, claimID,
	))
}

func (t *pgTx) MarkClaimConfirmed(ctx context.Context, claimID, settlementRef string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE reward_claims
            SET status = 'CONFIRMED', settlement_ref = $2, confirmed_at = $3
          WHERE claim_id = $1 AND status = 'PENDING'`,
		claimID, settlementRef, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrClaimNotPending
	}
	return nil
}

func (t *pgTx) ClaimActivityIDs(ctx context.Context, claimID string) ([]string, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT activity_id FROM activities WHERE claim_id = $1 ORDER BY started_at, activity_id`, claimID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t *pgTx) LockActivities(ctx context.Context, claimID string, activityIDs []string) (int, error) {
	if len(activityIDs) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE activities SET claim_id = $1
          WHERE activity_id = ANY($2) AND claim_id IS NULL AND claimed_at IS NULL`,
		claimID, activityIDs,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) MarkActivitiesClaimed(ctx context.Context, claimID, settlementRef string, at time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE activities SET claimed_at = $2, settlement_ref = $3
          WHERE claim_id = $1 AND claimed_at IS NULL`,
		claimID, at, settlementRef,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/ledger"
	"example.com/fitrewards/internal/rewards"
)

// Store is the transactional persistence the engine runs on.
type Store interface {
	// UserByWallet returns nil when no user owns the wallet.
	UserByWallet(ctx context.Context, wallet string) (*User, error)
	EnsureUser(ctx context.Context, wallet string) (User, error)
	// WithinTx runs fn in one all-or-nothing transaction. A non-empty lockKey
	// serialises callers sharing the key until the transaction ends. Any
	// error, including context cancellation, rolls everything back.
	WithinTx(ctx context.Context, lockKey string, fn func(Tx) error) error
}

// EligibilityFilter selects unclaimed activities for one user and day.
type EligibilityFilter struct {
	UserID         string
	Window         rewards.DayWindow
	MinDurationSec int
	Kinds          []rewards.Kind
	// IncludeClaimID also admits activities locked to this claim.
	IncludeClaimID string
}

// Tx is the set of operations available inside WithinTx.
type Tx interface {
	ledger.Tx

	PendingClaim(ctx context.Context, userID, dayKey string) (*RewardClaim, error)
	ConfirmedTotal(ctx context.Context, userID, dayKey string) (decimal.Decimal, error)
	EligibleActivities(ctx context.Context, filter EligibilityFilter) ([]Activity, error)
	ClaimActivityIDs(ctx context.Context, claimID string) ([]string, error)

	// InsertClaim returns ErrPendingClaimExists when the user already has a
	// pending claim for the claim's day.
	InsertClaim(ctx context.Context, claim RewardClaim) error
	// LockActivities sets claim_id on the listed activities that are still
	// unlocked and unclaimed, returning how many were updated.
	LockActivities(ctx context.Context, claimID string, activityIDs []string) (int, error)
	// ClaimForUpdate returns nil when the claim does not exist.
	ClaimForUpdate(ctx context.Context, claimID string) (*RewardClaim, error)
	MarkClaimConfirmed(ctx context.Context, claimID, settlementRef string, at time.Time) error
	MarkActivitiesClaimed(ctx context.Context, claimID, settlementRef string, at time.Time) (int, error)

	// InsertActivity returns ErrDuplicateActivity on a repeated provider activity id.
	InsertActivity(ctx context.Context, activity Activity) error

	AppendEvent(ctx context.Context, event Event) error
}

// ActivityReader lists a user's history, newest first.
type ActivityReader interface {
	ListActivities(ctx context.Context, userID string, since time.Time, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}

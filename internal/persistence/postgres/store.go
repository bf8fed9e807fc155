// Package postgres implements the reward engine's persistence on PostgreSQL.
// Every state transition runs in one transaction, optionally serialised by
// a transaction-scoped advisory lock.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/ledger"
	"example.com/fitrewards/internal/provider"
)

const uniqueViolation = "23505"

// Constraint names the store translates into domain errors.
const (
	pendingClaimConstraint     = "reward_claims_one_pending"
	providerActivityConstraint = "activities_provider_provider_activity_id_key"
)

// Store provides Postgres-backed persistence for users, activities, claims, wallets and outbox events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ domain.Store             = (*Store)(nil)
	_ domain.ActivityReader    = (*Store)(nil)
	_ ledger.Reader            = (*Store)(nil)
	_ provider.ConnectionStore = (*Store)(nil)
)

// WithinTx implements domain.Store. The advisory lock is released with the
// transaction. Rollback runs on a context detached from cancellation so an
// expired request still releases its locks promptly.
func (s *Store) WithinTx(ctx context.Context, lockKey string, fn func(domain.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if lockKey != "" {
		if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
	}

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgTx implements domain.Tx on an open transaction.
type pgTx struct {
	tx pgx.Tx
}

var _ domain.Tx = (*pgTx)(nil)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Amounts travel as text in both directions so no value passes through float64.
func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", raw, err)
	}
	return d, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

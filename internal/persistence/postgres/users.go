package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"example.com/fitrewards/internal/domain"
)

// UserByWallet implements domain.Store.
func (s *Store) UserByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, wallet, created_at FROM users WHERE wallet = $1`, wallet,
	).Scan(&u.ID, &u.Wallet, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.CreatedAt = utc(u.CreatedAt)
	return &u, nil
}

// EnsureUser implements domain.Store. Concurrent first calls for one wallet converge on a single row.
func (s *Store) EnsureUser(ctx context.Context, wallet string) (domain.User, error) {
	const stmt = `INSERT INTO users (user_id, wallet) VALUES ($1, $2)
        ON CONFLICT (wallet) DO UPDATE SET wallet = EXCLUDED.wallet
        RETURNING user_id, wallet, created_at`

	var u domain.User
	if err := s.pool.QueryRow(ctx, stmt, uuid.NewString(), wallet).Scan(&u.ID, &u.Wallet, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = utc(u.CreatedAt)
	return u, nil
}

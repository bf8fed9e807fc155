package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/fitrewards/internal/provider"
)

// Connection implements provider.ConnectionStore.
func (s *Store) Connection(ctx context.Context, userID, providerName string) (*provider.Connection, error) {
	var c provider.Connection
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, provider, athlete_id, access_token, refresh_token,
                COALESCE(expires_at, 'epoch'::timestamptz), updated_at
           FROM provider_connections WHERE user_id = $1 AND provider = $2`,
		userID, providerName,
	).Scan(&c.UserID, &c.Provider, &c.AthleteID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.ExpiresAt, c.UpdatedAt = utc(c.ExpiresAt), utc(c.UpdatedAt)
	return &c, nil
}

// SaveConnection implements provider.ConnectionStore.
func (s *Store) SaveConnection(ctx context.Context, c provider.Connection) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_connections (user_id, provider, athlete_id, access_token, refresh_token, expires_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (user_id, provider) DO UPDATE
            SET athlete_id = EXCLUDED.athlete_id,
                access_token = EXCLUDED.access_token,
                refresh_token = EXCLUDED.refresh_token,
                expires_at = EXCLUDED.expires_at,
                updated_at = EXCLUDED.updated_at`,
		c.UserID, c.Provider, c.AthleteID, c.AccessToken, c.RefreshToken, c.ExpiresAt, c.UpdatedAt,
	)
	return err
}

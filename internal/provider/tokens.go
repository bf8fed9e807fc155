// Package provider talks to fitness data providers: the OAuth token source
// and the Strava activity API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Strava is the provider tag stored on connections and activities.
const Strava = "STRAVA"

// RefreshWindow is how close to expiry a token is refreshed.
const RefreshWindow = 60 * time.Second

// ErrNotConnected is returned when the user has not linked the provider.
var ErrNotConnected = errors.New("provider not connected")

// Connection is a user's stored OAuth grant for one provider.
type Connection struct {
	UserID       string
	Provider     string
	AthleteID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// ConnectionStore persists provider connections.
type ConnectionStore interface {
	// Connection returns nil when the user has no connection for the provider.
	Connection(ctx context.Context, userID, provider string) (*Connection, error)
	SaveConnection(ctx context.Context, conn Connection) error
}

// Token is a refreshed OAuth grant.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher exchanges a refresh token for a new grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// TokenSource hands out access tokens, refreshing them shortly before expiry.
type TokenSource struct {
	store     ConnectionStore
	refresher Refresher
	provider  string
	now       func() time.Time
}

// NewTokenSource constructs a TokenSource for one provider.
func NewTokenSource(store ConnectionStore, refresher Refresher, provider string) *TokenSource {
	return &TokenSource{
		store:     store,
		refresher: refresher,
		provider:  provider,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ValidAccessToken returns the cached token unless it expires within
// RefreshWindow, in which case the refreshed grant is persisted first.
func (s *TokenSource) ValidAccessToken(ctx context.Context, userID string) (string, error) {
	conn, err := s.store.Connection(ctx, userID, s.provider)
	if err != nil {
		return "", fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return "", ErrNotConnected
	}

	now := s.now()
	if conn.AccessToken != "" && conn.ExpiresAt.After(now.Add(RefreshWindow)) {
		return conn.AccessToken, nil
	}
	if conn.RefreshToken == "" {
		return "", ErrNotConnected
	}

	token, err := s.refresher.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh %s token: %w", s.provider, err)
	}

	conn.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		conn.RefreshToken = token.RefreshToken
	}
	conn.ExpiresAt = token.ExpiresAt
	conn.UpdatedAt = now
	if err := s.store.SaveConnection(ctx, *conn); err != nil {
		return "", fmt.Errorf("save connection: %w", err)
	}
	return conn.AccessToken, nil
}

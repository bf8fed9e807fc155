package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/observability"
	"example.com/fitrewards/internal/provider"
)

// ActivitySource lists a provider's activities for an access token.
type ActivitySource interface {
	ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]provider.StravaActivity, error)
}

// TokenProvider yields a valid provider access token for a user.
type TokenProvider interface {
	ValidAccessToken(ctx context.Context, userID string) (string, error)
}

// Ingester stores one normalised activity.
type Ingester interface {
	Ingest(ctx context.Context, in domain.IngestInput) (domain.Activity, bool, error)
}

// SyncResult reports what one sync run did.
type SyncResult struct {
	Fetched int `json:"fetched"`
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
}

// Syncer pulls the latest page of provider activities into the store.
type Syncer struct {
	tokens   TokenProvider
	source   ActivitySource
	ingester Ingester
	pageSize int
	logger   *slog.Logger
}

// NewSyncer constructs a Syncer.
func NewSyncer(tokens TokenProvider, source ActivitySource, ingester Ingester, pageSize int, logger *slog.Logger) *Syncer {
	if pageSize <= 0 {
		pageSize = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{tokens: tokens, source: source, ingester: ingester, pageSize: pageSize, logger: logger}
}

// Sync fetches the first page and ingests runs and walks. Non-eligible kinds
// and duplicates count as skipped.
func (s *Syncer) Sync(ctx context.Context, userID string) (SyncResult, error) {
	token, err := s.tokens.ValidAccessToken(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}
	items, err := s.source.ListActivities(ctx, token, 1, s.pageSize)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list provider activities: %w", err)
	}

	res := SyncResult{Fetched: len(items)}
	for _, item := range items {
		in, ok := NormalizeStrava(userID, item)
		if !ok {
			res.Skipped++
			continue
		}
		_, duplicate, err := s.ingester.Ingest(ctx, in)
		switch {
		case errors.Is(err, domain.ErrInvalidActivity):
			s.logger.Warn("provider activity rejected", "user_id", userID, "provider_activity_id", in.ProviderActivityID, "error", err)
			res.Skipped++
		case err != nil:
			return res, err
		case duplicate:
			res.Skipped++
		default:
			res.Saved++
		}
	}

	observability.RecordProviderSync(provider.Strava, time.Now())
	s.logger.Info("provider sync complete", "user_id", userID, "fetched", res.Fetched, "saved", res.Saved, "skipped", res.Skipped)
	return res, nil
}

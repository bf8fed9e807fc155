// Package ingest turns provider activities into stored activities and runs
// provider syncs as background jobs.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/provider"
	"example.com/fitrewards/internal/rewards"
)

// NormalizeStrava maps a Strava activity to an ingest input. Activities that
// are not runs or walks report ok=false. Genuineness is left unset so the
// scorer applies its default.
func NormalizeStrava(userID string, a provider.StravaActivity) (domain.IngestInput, bool) {
	kind := rewards.Kind(strings.ToUpper(strings.TrimSpace(a.Type)))
	if !kind.Eligible() {
		return domain.IngestInput{}, false
	}

	in := domain.IngestInput{
		UserID:             userID,
		Provider:           provider.Strava,
		ProviderActivityID: strconv.FormatInt(a.ID, 10),
		Kind:               kind,
		StartedAt:          a.StartDate.UTC(),
		DurationSec:        a.ElapsedTime,
		RawHash:            RawHash(a.Raw),
	}
	if a.Distance != nil {
		meters := math.Round(*a.Distance)
		in.DistanceM = &meters
	}
	return in, true
}

// RawHash is the hex SHA-256 of a provider payload, kept for audit.
func RawHash(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

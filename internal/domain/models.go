// Package domain defines the reward engine's entities and the claim
// lifecycle: preview, prepare, confirm and authorize.
package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/rewards"
)

// ClaimStatus is the lifecycle state of a RewardClaim. PENDING moves forward to CONFIRMED only.
type ClaimStatus string

const (
	ClaimStatusPending   ClaimStatus = "PENDING"
	ClaimStatusConfirmed ClaimStatus = "CONFIRMED"
)

// InAppSettlementRef is the settlement reference recorded for ledger credits.
const InAppSettlementRef = "WALLET"

// InAppMemo labels ledger credits produced by claims.
const InAppMemo = "Rewards claimed"

// User is addressed by its lower-cased wallet.
type User struct {
	ID        string
	Wallet    string
	CreatedAt time.Time
}

// Activity is one ingested workout record.
type Activity struct {
	ID                 string
	UserID             string
	Provider           string
	ProviderActivityID string
	Kind               rewards.Kind
	StartedAt          time.Time
	DurationSec        int
	DistanceM          *float64
	AvgSpeedMps        *float64
	IntensityScore     *int
	GenuineScore       *int
	ClaimID            *string
	ClaimedAt          *time.Time
	SettlementRef      *string
	RawHash            string
	CreatedAt          time.Time
}

// Measurement projects the fields the scorer needs.
func (a Activity) Measurement() rewards.Measurement {
	return rewards.Measurement{
		Kind:        a.Kind,
		DurationSec: a.DurationSec,
		DistanceM:   a.DistanceM,
		AvgSpeedMps: a.AvgSpeedMps,
		Intensity:   a.IntensityScore,
		Genuine:     a.GenuineScore,
	}
}

// RewardClaim is one daily settlement batch.
type RewardClaim struct {
	ID            string
	UserID        string
	DayKey        string
	Amount        decimal.Decimal
	Status        ClaimStatus
	SettlementRef *string
	ConfirmedAt   *time.Time
	CreatedAt     time.Time
}

// Event is an outbox record appended inside a transition's transaction.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	// DedupeKey defaults to AggregateID:EventType when empty.
	DedupeKey string
	Payload   any
}

// Cursor models the activity history pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

var (
	walletPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	txRefPattern  = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// NormalizeWallet lower-cases and validates a 0x-prefixed 20-byte address.
func NormalizeWallet(raw string) (string, error) {
	wallet := strings.ToLower(strings.TrimSpace(raw))
	if !walletPattern.MatchString(wallet) {
		return "", ErrInvalidWallet
	}
	return wallet, nil
}

// ValidTxRef reports whether ref looks like a transaction hash.
func ValidTxRef(ref string) bool {
	return txRefPattern.MatchString(ref)
}

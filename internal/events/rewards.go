// Package events defines the reward event payloads published through the outbox.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeClaimPrepared    = "claim.prepared"
	TypeClaimConfirmed   = "claim.confirmed"
	TypeWalletCredited   = "wallet.credited"
	TypeActivityIngested = "activity.ingested"
)

// ClaimPrepared is emitted when activities are locked into a new pending claim.
type ClaimPrepared struct {
	ClaimID     string    `json:"claim_id"`
	UserID      string    `json:"user_id"`
	DayKey      string    `json:"day_key"`
	Amount      string    `json:"amount"`
	ActivityIDs []string  `json:"activity_ids"`
	Partial     bool      `json:"partial"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ClaimConfirmed is emitted once per claim when it reaches CONFIRMED.
type ClaimConfirmed struct {
	ClaimID       string    `json:"claim_id"`
	UserID        string    `json:"user_id"`
	DayKey        string    `json:"day_key"`
	Amount        string    `json:"amount"`
	Channel       string    `json:"channel"`
	SettlementRef string    `json:"settlement_ref"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// WalletCredited tracks an off-chain ledger credit.
type WalletCredited struct {
	WalletID      string    `json:"wallet_id"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	Balance       string    `json:"balance"`
	Reference     string    `json:"reference"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ActivityIngested is emitted for every newly stored activity.
type ActivityIngested struct {
	ActivityID         string    `json:"activity_id"`
	UserID             string    `json:"user_id"`
	Provider           string    `json:"provider"`
	ProviderActivityID string    `json:"provider_activity_id"`
	Kind               string    `json:"kind"`
	StartedAt          time.Time `json:"started_at"`
	DurationSec        int       `json:"duration_sec"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Route describes where an event type is published. Claim events share a
// topic so a claim's history stays ordered on one partition key.
type Route struct {
	Topic         string
	SchemaSubject string
}

var catalog = map[string]Route{
	TypeClaimPrepared:    {Topic: "reward_claims", SchemaSubject: "reward_claims-prepared-value"},
	TypeClaimConfirmed:   {Topic: "reward_claims", SchemaSubject: "reward_claims-confirmed-value"},
	TypeWalletCredited:   {Topic: "reward_wallets", SchemaSubject: "reward_wallets-value"},
	TypeActivityIngested: {Topic: "reward_activities", SchemaSubject: "reward_activities-value"},
}

// Lookup returns the route for an event type.
func Lookup(eventType string) (Route, bool) {
	r, ok := catalog[eventType]
	return r, ok
}

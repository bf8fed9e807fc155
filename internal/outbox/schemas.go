package outbox

import "example.com/fitrewards/internal/events"

const claimPreparedSchema = `{
  "type": "object",
  "title": "ClaimPrepared",
  "properties": {
    "claim_id": {"type": "string"},
    "user_id": {"type": "string"},
    "day_key": {"type": "string"},
    "amount": {"type": "string"},
    "activity_ids": {"type": "array", "items": {"type": "string"}},
    "partial": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["claim_id", "user_id", "day_key", "amount", "activity_ids", "partial", "occurred_at"],
  "additionalProperties": false
}`

const claimConfirmedSchema = `{
  "type": "object",
  "title": "ClaimConfirmed",
  "properties": {
    "claim_id": {"type": "string"},
    "user_id": {"type": "string"},
    "day_key": {"type": "string"},
    "amount": {"type": "string"},
    "channel": {"type": "string", "enum": ["onchain", "inapp"]},
    "settlement_ref": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["claim_id", "user_id", "day_key", "amount", "channel", "settlement_ref", "occurred_at"],
  "additionalProperties": false
}`

const walletCreditedSchema = `{
  "type": "object",
  "title": "WalletCredited",
  "properties": {
    "wallet_id": {"type": "string"},
    "user_id": {"type": "string"},
    "transaction_id": {"type": "string"},
    "amount": {"type": "string"},
    "balance": {"type": "string"},
    "reference": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["wallet_id", "user_id", "transaction_id", "amount", "balance", "reference", "occurred_at"],
  "additionalProperties": false
}`

const activityIngestedSchema = `{
  "type": "object",
  "title": "ActivityIngested",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "provider": {"type": "string"},
    "provider_activity_id": {"type": "string"},
    "kind": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "duration_sec": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "provider", "provider_activity_id", "kind", "started_at", "duration_sec", "occurred_at"],
  "additionalProperties": false
}`

var schemaCatalog = map[string]string{
	events.TypeClaimPrepared:    claimPreparedSchema,
	events.TypeClaimConfirmed:   claimConfirmedSchema,
	events.TypeWalletCredited:   walletCreditedSchema,
	events.TypeActivityIngested: activityIngestedSchema,
}

func schemaFor(eventType string) (string, bool) {
	s, ok := schemaCatalog[eventType]
	return s, ok
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/events"
)

// AppendEvent writes an outbox row in the caller's transaction. The dedupe
// key makes a re-appended event for the same aggregate a no-op.
func (t *pgTx) AppendEvent(ctx context.Context, e domain.Event) error {
	route, ok := events.Lookup(e.EventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", e.EventType)
	}
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}

	partitionKey := e.PartitionKey
	if partitionKey == "" {
		partitionKey = e.AggregateID
	}
	dedupeKey := e.DedupeKey
	if dedupeKey == "" {
		dedupeKey = fmt.Sprintf("%s:%s", e.AggregateID, e.EventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = t.tx.Exec(ctx, stmt,
		e.AggregateType,
		e.AggregateID,
		e.EventType,
		route.Topic,
		route.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

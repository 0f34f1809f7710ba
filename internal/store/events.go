package store

import "context"

// InsertDomainEvent persists an event row.
func (q *Queries) InsertDomainEvent(ctx context.Context, ev Event) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	return err
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-bengkel/internal/store"
)

// EventStore persists domain events. Pass the transaction-bound store so the
// event commits or rolls back with the document.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, ev store.Event) error
}

// DeliveryScheduler hands committed events to an external delivery system.
type DeliveryScheduler interface {
	Schedule(ctx context.Context, event store.Event) error
}

// Notifier reacts to committed events (logs, metrics).
type Notifier interface {
	Notify(ctx context.Context, event store.Event) error
}

// Bus records domain events and fans them out once committed.
type Bus struct {
	Scheduler DeliveryScheduler
	Notifiers []Notifier
	Now       func() time.Time
}

func (b *Bus) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

// Record builds and persists an event through st.
func (b *Bus) Record(ctx context.Context, st EventStore, topic, aggregateID string, payload any) (store.Event, error) {
	if st == nil {
		return store.Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return store.Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return store.Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return store.Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev := store.Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
		OccurredAt:  b.now(),
	}
	if err := st.InsertDomainEvent(ctx, ev); err != nil {
		return store.Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	return ev, nil
}

// Dispatch forwards committed events to the scheduler and notifiers. Failures
// are joined; the events themselves are already durable.
func (b *Bus) Dispatch(ctx context.Context, evs ...store.Event) error {
	if b == nil {
		return nil
	}
	var joined error
	for _, ev := range evs {
		if b.Scheduler != nil {
			if err := b.Scheduler.Schedule(ctx, ev); err != nil {
				joined = errors.Join(joined, fmt.Errorf("events: schedule %s: %w", ev.Topic, err))
			}
		}
		for _, notifier := range b.Notifiers {
			if notifier == nil {
				continue
			}
			if err := notifier.Notify(ctx, ev); err != nil {
				joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
			}
		}
	}
	return joined
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

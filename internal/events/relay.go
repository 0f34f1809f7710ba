package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-bengkel/internal/resilience"
	"github.com/noah-isme/backend-bengkel/internal/store"
)

// TaskTypePrefix prefixes the asynq task type of every relayed event.
const TaskTypePrefix = "billing:event:"

// Enqueuer is the subset of *asynq.Client used by AsynqScheduler.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler enqueues committed events for consumers outside this service.
// The event id doubles as the task id so a repeated dispatch is dropped.
type AsynqScheduler struct {
	Client Enqueuer
	Queue  string
}

// Schedule implements DeliveryScheduler.
func (s AsynqScheduler) Schedule(ctx context.Context, ev store.Event) error {
	if s.Client == nil {
		return errors.New("events: asynq client not configured")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID.String()), asynq.MaxRetry(10)}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	_, err = s.Client.EnqueueContext(ctx, asynq.NewTask(TaskTypePrefix+ev.Topic, body), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// GuardedScheduler stops calling Next while its breaker is open. Skipped
// events remain in the domain_events table.
type GuardedScheduler struct {
	Next    DeliveryScheduler
	Breaker *resilience.Breaker
}

// Schedule implements DeliveryScheduler.
func (g GuardedScheduler) Schedule(ctx context.Context, ev store.Event) error {
	if g.Next == nil {
		return errors.New("events: guarded scheduler has no target")
	}
	if g.Breaker == nil {
		return g.Next.Schedule(ctx, ev)
	}
	return g.Breaker.Do(ctx, func(ctx context.Context) error {
		return g.Next.Schedule(ctx, ev)
	})
}

// LogNotifier writes a structured line per committed event.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev store.Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		Msg("domain_event")
	return nil
}

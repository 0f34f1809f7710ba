package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-bengkel/internal/events"
	"github.com/noah-isme/backend-bengkel/internal/resilience"
	"github.com/noah-isme/backend-bengkel/internal/store"
)

type stubStore struct {
	events []store.Event
	err    error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev store.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type captureScheduler struct {
	events []store.Event
	err    error
}

func (c *captureScheduler) Schedule(_ context.Context, ev store.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

type captureNotifier struct {
	events []store.Event
}

func (c *captureNotifier) Notify(_ context.Context, ev store.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestRecordPersistsEvent(t *testing.T) {
	st := &stubStore{}
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bus := &events.Bus{Now: func() time.Time { return fixed }}

	ev, err := bus.Record(context.Background(), st, events.TopicInvoiceCreated, "42", map[string]any{"number": 100001})
	require.NoError(t, err)
	require.Len(t, st.events, 1)
	require.Equal(t, ev, st.events[0])
	require.Equal(t, events.TopicInvoiceCreated, ev.Topic)
	require.Equal(t, "42", ev.AggregateID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"number":100001}`, string(ev.Payload))
}

func TestRecordValidatesInput(t *testing.T) {
	bus := &events.Bus{}
	_, err := bus.Record(context.Background(), &stubStore{}, " ", "1", nil)
	require.Error(t, err)
	_, err = bus.Record(context.Background(), &stubStore{}, events.TopicInvoicePaid, "", nil)
	require.Error(t, err)
	_, err = bus.Record(context.Background(), &stubStore{}, events.TopicInvoicePaid, "1", json.RawMessage("{bad"))
	require.Error(t, err)

	boom := errors.New("insert failed")
	_, err = bus.Record(context.Background(), &stubStore{err: boom}, events.TopicInvoicePaid, "1", nil)
	require.ErrorIs(t, err, boom)
}

func TestDispatchFansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("queue down")
	scheduler := &captureScheduler{err: boom}
	notifier := &captureNotifier{}
	bus := &events.Bus{Scheduler: scheduler, Notifiers: []events.Notifier{notifier, nil}}

	ev, err := bus.Record(context.Background(), &stubStore{}, events.Topic("estimate", "created"), "7", nil)
	require.NoError(t, err)
	require.Equal(t, events.TopicEstimateCreated, ev.Topic)

	err = bus.Dispatch(context.Background(), ev)
	require.ErrorIs(t, err, boom)
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
}

type stubEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	s.opts = append(s.opts, opts)
	return &asynq.TaskInfo{}, s.err
}

func TestAsynqSchedulerEnqueuesTask(t *testing.T) {
	enq := &stubEnqueuer{}
	bus := &events.Bus{}
	ev, err := bus.Record(context.Background(), &stubStore{}, events.TopicInvoicePaid, "9", nil)
	require.NoError(t, err)

	require.NoError(t, events.AsynqScheduler{Client: enq, Queue: "billing"}.Schedule(context.Background(), ev))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, events.TaskTypePrefix+events.TopicInvoicePaid, enq.tasks[0].Type())

	var decoded store.Event
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	require.Equal(t, ev.ID, decoded.ID)
	require.Len(t, enq.opts[0], 3)
}

func TestAsynqSchedulerIgnoresDuplicateTask(t *testing.T) {
	enq := &stubEnqueuer{err: asynq.ErrTaskIDConflict}
	ev, err := (&events.Bus{}).Record(context.Background(), &stubStore{}, events.TopicInvoicePaid, "9", nil)
	require.NoError(t, err)
	require.NoError(t, events.AsynqScheduler{Client: enq}.Schedule(context.Background(), ev))
}

func TestGuardedSchedulerOpensAfterFailures(t *testing.T) {
	boom := errors.New("redis down")
	next := &captureScheduler{err: boom}
	g := events.GuardedScheduler{
		Next:    next,
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{Target: "asynq", MinRequests: 2, OpenFor: time.Hour}),
	}
	ev, err := (&events.Bus{}).Record(context.Background(), &stubStore{}, events.TopicInvoiceCreated, "1", nil)
	require.NoError(t, err)

	require.ErrorIs(t, g.Schedule(context.Background(), ev), boom)
	require.ErrorIs(t, g.Schedule(context.Background(), ev), boom)
	require.ErrorIs(t, g.Schedule(context.Background(), ev), resilience.ErrOpenCircuit)
	require.Len(t, next.events, 2)
}

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	n := events.LogNotifier{Logger: zerolog.New(&buf)}
	ev, err := (&events.Bus{}).Record(context.Background(), &stubStore{}, events.TopicInvoiceDeleted, "3", nil)
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Contains(t, buf.String(), `"topic":"invoice.deleted"`)
	require.Contains(t, buf.String(), `"message":"domain_event"`)
}

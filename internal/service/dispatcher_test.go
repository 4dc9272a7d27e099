package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu        sync.Mutex
	published []*queue.Task
	err       error
}

func (q *fakeQueue) Publish(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, task)
	return nil
}

func (q *fakeQueue) Subscribe(ctx context.Context, handler func(*queue.Task) error) error {
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func TestDispatcher_FailedDeliveryStaysPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	booking := h.book(t, h.child(t, 8), event)

	h.notifier.err = errors.New("telegram down")
	_, err := h.bookings.Delete(ctx, &DeleteBookingRequest{BookingID: booking.ID, Reason: "moved"})
	require.NoError(t, err, "a notification failure must not fail the deletion")

	pending, err := h.store.Outbox().GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entity.OutboxBookingDeleted, pending[0].Kind)
	assert.Equal(t, 1, pending[0].Attempts)

	h.notifier.err = nil
	dispatcher := NewDispatcher(h.store.Outbox(), nil, h.notifier, h.clock)
	delivered, err := dispatcher.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []notification{{kind: entity.OutboxBookingDeleted, bookingID: booking.ID, reason: "moved"}}, h.notifier.notifications())

	delivered, err = dispatcher.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestDispatcher_PublishesQueueTasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	confirmed := h.book(t, h.child(t, 8), event)
	waiting := h.book(t, h.child(t, 8), event)

	q := &fakeQueue{}
	dispatcher := NewDispatcher(h.store.Outbox(), NewQueueAdapter(q), h.notifier, h.clock)
	bookings := NewBookingService(h.store, h.clock, dispatcher, nil, DefaultOptions())

	_, err := bookings.Delete(ctx, &DeleteBookingRequest{BookingID: confirmed.ID, Reason: "sick"})
	require.NoError(t, err)

	require.Len(t, q.published, 2)
	assert.Empty(t, h.notifier.notifications(), "the queue consumer notifies, not the dispatcher")

	deleted := q.published[0]
	assert.Equal(t, queue.TaskTypeSendNotification, deleted.Type)
	assert.Equal(t, queue.NotificationBookingDeleted, deleted.GetString("notification_type"))
	assert.Equal(t, confirmed.ID, deleted.GetInt64("booking_id"))
	assert.Equal(t, "sick", deleted.GetString("reason"))

	promoted := q.published[1]
	assert.Equal(t, queue.NotificationBookingPromoted, promoted.GetString("notification_type"))
	assert.Equal(t, waiting.ID, promoted.GetInt64("booking_id"))

	// The consumer side turns the tasks back into notifications.
	handler := queue.NewTaskHandler(h.notifier, time.Second)
	for _, task := range q.published {
		require.NoError(t, handler.HandleTask(task))
	}
	assert.Equal(t, []notification{
		{kind: entity.OutboxBookingDeleted, bookingID: confirmed.ID, reason: "sick"},
		{kind: entity.OutboxBookingPromoted, bookingID: waiting.ID},
	}, h.notifier.notifications())

	pending, err := h.store.Outbox().GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_PublishFailureLeavesMessagePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	booking := h.book(t, h.child(t, 8), event)

	q := &fakeQueue{err: errors.New("redis unavailable")}
	dispatcher := NewDispatcher(h.store.Outbox(), NewQueueAdapter(q), nil, h.clock)
	bookings := NewBookingService(h.store, h.clock, dispatcher, nil, DefaultOptions())

	_, err := bookings.Delete(ctx, &DeleteBookingRequest{BookingID: booking.ID})
	require.NoError(t, err)

	pending, err := h.store.Outbox().GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNotificationTask(t *testing.T) {
	created := time.Date(2025, 2, 3, 4, 5, 6, 7, time.UTC)
	msg := &entity.OutboxMessage{
		ID:      "msg-1",
		Kind:    entity.OutboxBookingPromoted,
		Booking: entity.Booking{ID: 3, ChildID: 4, EventID: 5, Status: entity.BookingStatusConfirmed, CreatedAt: created},
	}

	task := notificationTask(msg, today)
	assert.Equal(t, "msg-1", task.ID)
	assert.Equal(t, TaskTypeSendNotification, task.Type)
	assert.Equal(t, today, task.ExecuteAt)
	assert.Equal(t, map[string]interface{}{
		"notification_type": "booking_promoted",
		"booking_id":        int64(3),
		"child_id":          int64(4),
		"event_id":          int64(5),
		"status":            "CONFIRMED",
		"created_at":        created.Format(time.RFC3339Nano),
		"reason":            "",
	}, task.Data)
}

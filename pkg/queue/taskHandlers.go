package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/pkg/retry"

	"github.com/sirupsen/logrus"
)

// BookingNotifier is what the consumer needs from the notification layer.
type BookingNotifier interface {
	NotifyDeleted(ctx context.Context, booking *entity.Booking, reason string) error
	NotifyPromoted(ctx context.Context, booking *entity.Booking) error
}

// TaskHandler turns queue tasks into guardian notifications.
type TaskHandler struct {
	notifier BookingNotifier
	timeout  time.Duration
}

func NewTaskHandler(notifier BookingNotifier, timeout time.Duration) *TaskHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TaskHandler{
		notifier: notifier,
		timeout:  timeout,
	}
}

// HandleTask is the Subscribe callback. Malformed tasks fail permanently so
// they go straight to the DLQ.
func (h *TaskHandler) HandleTask(task *Task) error {
	logrus.WithFields(logrus.Fields{
		"task_id": task.ID,
		"type":    task.Type,
		"attempt": task.Attempts,
	}).Debug("Handling task")

	switch task.Type {
	case TaskTypeSendNotification:
		return h.handleSendNotification(task)
	default:
		return retry.Permanent(fmt.Errorf("unknown task type: %s", task.Type))
	}
}

func (h *TaskHandler) handleSendNotification(task *Task) error {
	booking, err := bookingFromTask(task)
	if err != nil {
		return retry.Permanent(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	switch kind := task.GetString("notification_type"); kind {
	case NotificationBookingDeleted:
		return h.notifier.NotifyDeleted(ctx, booking, task.GetString("reason"))
	case NotificationBookingPromoted:
		return h.notifier.NotifyPromoted(ctx, booking)
	default:
		return retry.Permanent(fmt.Errorf("unknown notification type %q", kind))
	}
}

func bookingFromTask(task *Task) (*entity.Booking, error) {
	booking := &entity.Booking{
		ID:        task.GetInt64("booking_id"),
		ChildID:   task.GetInt64("child_id"),
		EventID:   task.GetInt64("event_id"),
		Status:    entity.BookingStatus(task.GetString("status")),
		CreatedAt: task.GetTime("created_at"),
	}
	if booking.ID == 0 || booking.ChildID == 0 || booking.EventID == 0 {
		return nil, fmt.Errorf("task %s is missing booking_id, child_id or event_id", task.ID)
	}
	return booking, nil
}

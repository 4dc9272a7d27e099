package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/clock"
	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TaskPublisher publishes tasks to the background queue.
type TaskPublisher interface {
	Publish(ctx context.Context, task *Task) error
}

// Task is a unit of background work.
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	MaxRetries int                    `json:"max_retries"`
	Attempts   int                    `json:"attempts"`
}

const TaskTypeSendNotification = "send_notification"

// Dispatcher delivers outbox messages once their transaction has committed.
// With a publisher the message becomes a queue task; otherwise the notifier
// is called inline. A message is marked delivered only after a successful
// hand-off, so a crash in between leads to a second delivery, never a lost one.
type Dispatcher struct {
	outbox    repository.OutboxRepository
	publisher TaskPublisher
	notifier  Notifier
	clock     clock.Clock
}

func NewDispatcher(outbox repository.OutboxRepository, publisher TaskPublisher, notifier Notifier, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		outbox:    outbox,
		publisher: publisher,
		notifier:  notifier,
		clock:     clk,
	}
}

// Dispatch delivers msgs and returns how many were handed off. Failures are
// logged and left pending for the relay worker.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []*entity.OutboxMessage) int {
	delivered := 0
	for _, msg := range msgs {
		if err := d.deliver(ctx, msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"message_id": msg.ID,
				"kind":       msg.Kind,
				"booking_id": msg.Booking.ID,
			}).WithError(err).Warn("Outbox delivery failed, will be retried")

			if err := d.outbox.MarkFailed(ctx, msg.ID); err != nil && !errors.Is(err, entity.ErrNotFound) {
				logrus.WithError(err).WithField("message_id", msg.ID).Error("Failed to record outbox attempt")
			}
			continue
		}
		delivered++
	}
	return delivered
}

// DispatchPending delivers up to limit undelivered messages, oldest first.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) (int, error) {
	pending, err := d.outbox.GetPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending outbox messages: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return d.Dispatch(ctx, pending), nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg *entity.OutboxMessage) error {
	if err := d.handOff(ctx, msg); err != nil {
		return err
	}

	// The relay may have delivered the same message concurrently.
	if err := d.outbox.MarkDelivered(ctx, msg.ID, d.clock.Now()); err != nil && !errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("failed to mark message delivered: %w", err)
	}
	return nil
}

func (d *Dispatcher) handOff(ctx context.Context, msg *entity.OutboxMessage) error {
	if d.publisher != nil {
		return d.publisher.Publish(ctx, notificationTask(msg, d.clock.Now()))
	}
	if d.notifier == nil {
		return nil
	}

	booking := msg.Booking
	switch msg.Kind {
	case entity.OutboxBookingDeleted:
		return d.notifier.NotifyDeleted(ctx, &booking, msg.Reason)
	case entity.OutboxBookingPromoted:
		return d.notifier.NotifyPromoted(ctx, &booking)
	default:
		return fmt.Errorf("unknown outbox message kind %q", msg.Kind)
	}
}

func notificationTask(msg *entity.OutboxMessage, now time.Time) *Task {
	return &Task{
		ID:   msg.ID,
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{
			"notification_type": string(msg.Kind),
			"booking_id":        msg.Booking.ID,
			"child_id":          msg.Booking.ChildID,
			"event_id":          msg.Booking.EventID,
			"status":            string(msg.Booking.Status),
			"created_at":        msg.Booking.CreatedAt.Format(time.RFC3339Nano),
			"reason":            msg.Reason,
		},
		ExecuteAt:  now,
		MaxRetries: 3,
	}
}

func newOutboxMessage(kind entity.OutboxKind, booking *entity.Booking, reason string, now time.Time) *entity.OutboxMessage {
	return &entity.OutboxMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		Booking:   *booking,
		Reason:    reason,
		CreatedAt: now,
	}
}

// addOutbox writes one message per booking inside the current unit.
func addOutbox(ctx context.Context, tx repository.EventTx, msgs ...*entity.OutboxMessage) error {
	for _, msg := range msgs {
		if err := tx.AddOutbox(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
